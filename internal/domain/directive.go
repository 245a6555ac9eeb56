package domain

// DirectiveType identifies an in-band directive the caller must act on
type DirectiveType string

const (
	DirectiveNavigate          DirectiveType = "navigate"
	DirectiveFilter            DirectiveType = "filter"
	DirectiveAddToCart         DirectiveType = "addToCart"
	DirectiveViewCart          DirectiveType = "viewCart"
	DirectiveProceedToCheckout DirectiveType = "proceedToCheckout"
	DirectiveViewOrders        DirectiveType = "viewOrders"
)

// ToolInvocation is a structured side-channel event mirroring a directive
// observed in generated text. Delivery is at-least-once: the directive also
// remains visible in the literal transcript.
type ToolInvocation struct {
	Type       DirectiveType `json:"type"`
	RawPayload string        `json:"raw_payload,omitempty"`
	Data       string        `json:"data,omitempty"`
}

// directiveNames maps the wire-format marker names to directive types.
var directiveNames = map[string]DirectiveType{
	"NAVIGATE":            DirectiveNavigate,
	"FILTER":              DirectiveFilter,
	"ADD_TO_CART":         DirectiveAddToCart,
	"VIEW_CART":           DirectiveViewCart,
	"PROCEED_TO_CHECKOUT": DirectiveProceedToCheckout,
	"VIEW_ORDERS":         DirectiveViewOrders,
}

// DirectiveTypeForName resolves a marker name like "ADD_TO_CART" to its
// directive type. The second return is false for unknown names.
func DirectiveTypeForName(name string) (DirectiveType, bool) {
	t, ok := directiveNames[name]
	return t, ok
}
