// Package push contains the domain model shared by the dispatch engine,
// the provider adapters, and the registry stores.
package push

// Event is what a domain change wants delivered: a recipient set and the
// notification payload. Recipients are user references, either a user
// document id or the user's external auth uid; the resolver accepts both.
type Event struct {
	Recipients []string       `json:"recipients"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
}

// Message is one deliverable unit: the payload addressed to a single token.
// The JSON tags define the gateway wire shape. Scope never serializes; it
// is a batch attribute (all messages in one provider call share it).
type Message struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Sound string         `json:"sound,omitempty"`
	Data  map[string]any `json:"data,omitempty"`

	Scope string `json:"-"`
}

// TicketStatus is the immediate outcome of submitting one message.
type TicketStatus string

const (
	TicketOK    TicketStatus = "ok"
	TicketError TicketStatus = "error"
)

// Ticket acknowledges submission of one message, not delivery. Tickets are
// positionally aligned with the batch they answer and live only long enough
// to be exchanged for a receipt.
type Ticket struct {
	Status  TicketStatus  `json:"status"`
	ID      string        `json:"id,omitempty"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ReceiptStatus is the provider's asynchronous delivery outcome for a ticket.
type ReceiptStatus string

const (
	ReceiptOK    ReceiptStatus = "ok"
	ReceiptError ReceiptStatus = "error"
)

// Receipt is the provider's later confirmation of what happened to a ticket.
type Receipt struct {
	Status  ReceiptStatus `json:"status"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails carries the provider's machine-readable error kind.
type ErrorDetails struct {
	Error string `json:"error,omitempty"`
}

// Provider error kinds. DeviceNotRegistered is the only permanent one: the
// token is dead and must be pruned. The rest describe the message or the
// credentials, not the token.
const (
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
	ErrorMessageTooBig       = "MessageTooBig"
	ErrorMessageRateExceeded = "MessageRateExceeded"
	ErrorInvalidCredentials  = "InvalidCredentials"
)

// Permanent reports whether the receipt marks its token as gone for good.
func (r Receipt) Permanent() bool {
	return r.Status == ReceiptError && r.Details != nil && r.Details.Error == ErrorDeviceNotRegistered
}

// Recipient is a resolved user document together with its validated token
// registry: scope name -> tokens in registry order. Tokens from different
// scopes are never mixed in a single send.
type Recipient struct {
	ID          string
	ExternalUID string
	Tokens      map[string][]string
}

// PruneSet maps a user id to the tokens flagged for removal. Scope
// attribution happens in the pruner via the token -> scope map built during
// dispatch.
type PruneSet map[string][]string

// Outcome is the observable result of one full pipeline invocation. The
// engine never fails outward; callers inspect the counters instead.
type Outcome struct {
	Recipients        int // user documents that contributed at least one message
	SkippedRecipients int // refs dropped during resolution (missing, malformed, empty)
	Messages          int // messages built across all scopes
	Chunks            int // provider batches attempted
	DroppedChunks     int // batches abandoned after retry exhaustion
	Tickets           int // ok tickets collected
	FailedTickets     int // tickets the provider rejected at submission
	MissingReceipts   int // tickets whose receipts never arrived or could not be fetched
	PrunedTokens      int // tokens removed from the registry
}
