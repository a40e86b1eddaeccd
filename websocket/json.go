package websocket

import "encoding/json"

// WriteJSON writes the JSON encoding of v as a text message.
func (w *Writer) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteMessage(Message{Type: TextMessage, Data: data})
}

// DecodeJSON decodes a text message's payload into v. It returns
// ErrInvalidMessageType for a binary message.
func DecodeJSON(msg Message, v any) error {
	if msg.Type != TextMessage {
		return ErrInvalidMessageType
	}
	return json.Unmarshal(msg.Data, v)
}
