package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewAuthMessage creates the settings snapshot sent right after upgrade
func NewAuthMessage(data AuthData) (*Message, error) {
	return NewMessage(TypeAuth, data)
}

// NewServerMessage creates a lifecycle signal message
func NewServerMessage(signal string) (*Message, error) {
	return NewMessage(TypeServer, ServerData{Msg: signal})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Code:    code,
		Message: message,
	})
}

// NewTranscriptMessage creates a user transcript message
func NewTranscriptMessage(text string) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Text: text})
}

// NewAssistantMessage creates an assistant text message
func NewAssistantMessage(text string) (*Message, error) {
	return NewMessage(TypeAssistant, AssistantData{Text: text})
}

// NewActionMessage creates a device-originated command message
func NewActionMessage(action, assetID string) (*Message, error) {
	return NewMessage(TypeAction, ActionData{
		Action:  action,
		AssetID: assetID,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetAuthData extracts auth data from a message
func (m *Message) GetAuthData() (*AuthData, error) {
	var data AuthData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetServerData extracts the lifecycle signal from a message
func (m *Message) GetServerData() (*ServerData, error) {
	var data ServerData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetActionData extracts a device command from a message.
// Works for both "action" and the older "instruction" spelling.
func (m *Message) GetActionData() (*ActionData, error) {
	var data ActionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// IsAction reports whether the message carries a device-originated command.
func (m *Message) IsAction() bool {
	return m.Type == TypeAction || m.Type == TypeInstruction
}
