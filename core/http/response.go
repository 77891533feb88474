package http

// Response is one parsed response: the status line, the headers as an
// unparsed blob, and the body.
type Response struct {
	StatusLine      string
	HeaderRemainder string
	Body            []byte
}

// Clear resets the response for reuse.
func (r *Response) Clear() {
	r.StatusLine = ""
	r.HeaderRemainder = ""
	r.Body = r.Body[:0]
}
