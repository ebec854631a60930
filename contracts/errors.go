package contracts

type QueueError string

const ErrNoNewMessage QueueError = "no new message"
const MessageNotFoundError QueueError = "message not found"

// ErrUnrecoverable is wrapped by sources when retrying the same call can never succeed (closed client, deleted stream...).
const ErrUnrecoverable QueueError = "unrecoverable source error"

func (e QueueError) Error() string { return string(e) }
