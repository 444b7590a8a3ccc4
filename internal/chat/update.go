package chat

// Update is the payload of message.* bus events.
type Update struct {
	Peer    string
	TempID  string
	ID      string
	Message *Message `json:",omitempty"`
	Outcome string   `json:",omitempty"`
	Error   string   `json:",omitempty"`
}
