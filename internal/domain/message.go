package domain

// Kind classifies a relayed negotiation message.
type Kind string

const (
	KindCallOffer           Kind = "call_offer"
	KindCallAnswer          Kind = "call_answer"
	KindRenegotiationOffer  Kind = "renegotiation_offer"
	KindRenegotiationAnswer Kind = "renegotiation_answer"
	KindCallEnded           Kind = "call_ended"
	KindMediaToggle         Kind = "media_toggle"
	KindChat                Kind = "chat"
	KindPresence            Kind = "presence"
)

// Targeted reports whether messages of this kind are addressed to a single connection.
func (k Kind) Targeted() bool {
	switch k {
	case KindChat, KindPresence:
		return false
	}
	return true
}

// Message is a transient relay envelope. Topic is the outbound event name.
// Payload is never interpreted by the relay.
type Message struct {
	Kind    Kind
	Topic   string
	From    ConnectionID
	To      ConnectionID
	Payload []byte
}
