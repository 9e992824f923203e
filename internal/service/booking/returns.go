package booking

import (
	"net/url"
	"strings"

	"github.com/kirinyoku/feisbook/internal/payment"
)

const (
	PageConfirm = "confirm"
	PageCancel  = "cancel"
)

const (
	paramPage      = "page"
	paramEventID   = "event_id"
	paramName      = "name"
	paramEmail     = "email"
	paramOptions   = "options"
	paramSessionID = "session_id"
)

// ReturnParams is what the browser brings back from the payment page. It
// deliberately has no amount: the charged amount never comes from the
// callback.
type ReturnParams struct {
	Page      string
	SessionID string
	EventID   string
	Name      string
	Email     string
	Options   []string
}

// ParseReturn reads a payment return from query parameters. Options may be
// comma separated, repeated, or both.
func ParseReturn(q url.Values) ReturnParams {
	var opts []string
	for _, v := range q[paramOptions] {
		opts = append(opts, strings.Split(v, ",")...)
	}

	return ReturnParams{
		Page:      strings.TrimSpace(q.Get(paramPage)),
		SessionID: strings.TrimSpace(q.Get(paramSessionID)),
		EventID:   strings.TrimSpace(q.Get(paramEventID)),
		Name:      strings.TrimSpace(q.Get(paramName)),
		Email:     strings.TrimSpace(q.Get(paramEmail)),
		Options:   dedupe(opts),
	}
}

// missing lists the required fields absent from r.
func (r ReturnParams) missing() []string {
	var out []string
	if r.EventID == "" {
		out = append(out, paramEventID)
	}
	if r.Name == "" {
		out = append(out, paramName)
	}
	if r.Email == "" {
		out = append(out, paramEmail)
	}
	if len(r.Options) == 0 {
		out = append(out, paramOptions)
	}
	if r.SessionID == "" {
		out = append(out, paramSessionID)
	}
	return out
}

// successURL encodes every draft field into the return target. The session
// id is left as the gateway placeholder, unescaped, for the gateway to fill.
func successURL(base string, eventID, name, email string, options []string) string {
	q := url.Values{}
	q.Set(paramPage, PageConfirm)
	q.Set(paramEventID, eventID)
	q.Set(paramName, name)
	q.Set(paramEmail, email)
	q.Set(paramOptions, strings.Join(options, ","))

	return returnBase(base) + "?" + q.Encode() + "&" + paramSessionID + "=" + payment.SessionIDPlaceholder
}

func cancelURL(base string) string {
	q := url.Values{}
	q.Set(paramPage, PageCancel)

	return returnBase(base) + "?" + q.Encode() + "&" + paramSessionID + "=" + payment.SessionIDPlaceholder
}

func returnBase(base string) string {
	return strings.TrimRight(base, "/") + "/"
}

func dedupe(opts []string) []string {
	seen := make(map[string]struct{}, len(opts))
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		key := strings.ToLower(o)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	return out
}
