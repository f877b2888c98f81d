package lnurlsig

import "fmt"

// Subprotocol tags.
const (
	TagChannelRequest  = "channelRequest"
	TagLogin           = "login"
	TagPayRequest      = "payRequest"
	TagWithdrawRequest = "withdrawRequest"
)

var shortTags = map[string]string{
	"c": TagChannelRequest,
	"l": TagLogin,
	"p": TagPayRequest,
	"w": TagWithdrawRequest,
}

// Short parameter codes are reused across subprotocols, so they are keyed by tag.
var shortParams = map[string]map[string]string{
	TagChannelRequest: {"pl": "localAmt", "pp": "pushAmt"},
	TagLogin:          {},
	TagPayRequest:     {"pn": "minSendable", "px": "maxSendable", "pm": "metadata"},
	TagWithdrawRequest: {
		"pn": "minWithdrawable",
		"px": "maxWithdrawable",
		"pd": "defaultDescription",
	},
}

var shortGeneral = map[string]string{
	"n": "nonce",
	"s": SignatureKey,
	"t": "tag",
}

// ExpandError reports a query that cannot be expanded.
type ExpandError struct {
	Msg string
}

func (e *ExpandError) Error() string { return e.Msg }

// Expand rewrites compact query keys and tag codes into their long form.
// A long key already present in query always wins over its short alias.
// Keys that are not known short codes are copied unchanged.
func Expand(query map[string]string) (map[string]string, error) {
	tag, ok := query["tag"]
	if !ok {
		tag, ok = query["t"]
	}
	if !ok {
		return nil, &ExpandError{Msg: `Missing required query parameter: "tag"`}
	}
	if long, ok := shortTags[tag]; ok {
		tag = long
	}
	params, ok := shortParams[tag]
	if !ok {
		return nil, &ExpandError{Msg: fmt.Sprintf("Unknown tag: %q", tag)}
	}

	out := make(map[string]string, len(query))
	for k, v := range query {
		if long, ok := params[k]; ok {
			if _, dup := query[long]; !dup {
				out[long] = v
			}
			continue
		}
		if long, ok := shortGeneral[k]; ok {
			if _, dup := query[long]; !dup {
				out[long] = v
			}
			continue
		}
		out[k] = v
	}
	out["tag"] = tag
	return out, nil
}

// Shorten is the inverse of Expand, used by signers that emit compact URLs.
func Shorten(query map[string]string) map[string]string {
	tag := query["tag"]
	out := make(map[string]string, len(query))
	for k, v := range query {
		out[k] = v
	}
	for short, long := range shortParams[tag] {
		if v, ok := out[long]; ok {
			delete(out, long)
			out[short] = v
		}
	}
	for short, long := range shortGeneral {
		if v, ok := out[long]; ok {
			delete(out, long)
			out[short] = v
		}
	}
	for short, long := range shortTags {
		if out["t"] == long {
			out["t"] = short
		}
	}
	return out
}
