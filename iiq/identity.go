package iiq

import "context"

// LookupIdentityWorkflow resolves a chat address (phone number / chat id)
// to a backend identity. Expected output attributes: found, identityName,
// displayName, capabilities (JSON-encoded list).
const LookupIdentityWorkflow = "LookupIdentityByPhone"

// ResolvedIdentity is the outcome of an identity lookup.
type ResolvedIdentity struct {
	Found        bool
	IdentityName string
	DisplayName  string
	Capabilities []string
}

// LookupIdentityByPhone resolves the given channel address against the
// backend. A lookup that completes but matches nobody returns
// Found=false with no error.
func (c *Client) LookupIdentityByPhone(ctx context.Context, address string) (*ResolvedIdentity, error) {
	res, err := c.LaunchWorkflow(ctx, LookupIdentityWorkflow, map[string]string{
		"phone": address,
	})
	if err != nil {
		return nil, err
	}
	out := &ResolvedIdentity{
		Found:        res.BoolAttr("found"),
		IdentityName: res.StringAttr("identityName"),
		DisplayName:  res.StringAttr("displayName"),
	}
	if !out.Found {
		return out, nil
	}
	var caps []string
	if err := res.JSONAttr("capabilities", &caps); err == nil {
		out.Capabilities = caps
	}
	if out.DisplayName == "" {
		out.DisplayName = out.IdentityName
	}
	return out, nil
}
