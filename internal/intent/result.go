package intent

// Action kinds carried in the "action" field of a model reply.
const (
	ActionOpenLink  = "open_link"
	ActionCloseLink = "close_link"
)

// Result is the outcome of [Router.Resolve]. It is one of [PlainAnswer],
// [OpenLink] or [CloseLink].
type Result interface {
	// Kind returns "plain", "open_link" or "close_link".
	Kind() string

	isResult()
}

// PlainAnswer is a spoken answer with no navigation.
type PlainAnswer struct {
	Text string
}

// OpenLink asks the client to open URL.
type OpenLink struct {
	URL          string
	SpokenAnswer string

	// Description is the matched catalog entry's description, if any.
	Description string
}

// CloseLink asks the client to close the currently opened page.
type CloseLink struct {
	SpokenAnswer string
	Description  string
}

func (PlainAnswer) Kind() string { return "plain" }
func (OpenLink) Kind() string    { return ActionOpenLink }
func (CloseLink) Kind() string   { return ActionCloseLink }

func (PlainAnswer) isResult() {}
func (OpenLink) isResult()    {}
func (CloseLink) isResult()   {}

// ActionPayload is the JSON object exchanged with the model and echoed to
// the browser client as response_text.
type ActionPayload struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
	Answer string `json:"answer"`
}

// Payload returns the action object for o.
func (o OpenLink) Payload() ActionPayload {
	return ActionPayload{Action: ActionOpenLink, URL: o.URL, Answer: o.SpokenAnswer}
}

// Payload returns the action object for c.
func (c CloseLink) Payload() ActionPayload {
	return ActionPayload{Action: ActionCloseLink, Answer: c.SpokenAnswer}
}
