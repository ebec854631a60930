package contracts

type Message struct {
	ID           string
	Queue        string
	Payload      string
	ReceiveCount int64
}

func NewMessage(id, queue, payload string, receiveCount int64) Message {
	return Message{
		ID:           id,
		Queue:        queue,
		Payload:      payload,
		ReceiveCount: receiveCount,
	}
}

func (m Message) GetQueue() string {
	return m.Queue
}

func (m Message) GetId() string {
	return m.ID
}

func (m Message) GetPayload() string {
	return m.Payload
}

// GetReceiveCount returns how many times the message has been delivered, including this delivery.
func (m Message) GetReceiveCount() int64 {
	return m.ReceiveCount
}
