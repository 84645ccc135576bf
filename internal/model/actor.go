package model

// Actor is the caller of an API request as asserted by the gateway headers.
type Actor struct {
	UserID  string
	OrgRole OrgRole
}

// SeesAllProjects reports whether the actor's organization role grants access to
// every project.
func (a Actor) SeesAllProjects() bool {
	return a.OrgRole == OrgOwner || a.OrgRole == OrgAdmin
}
