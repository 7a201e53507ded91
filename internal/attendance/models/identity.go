package models

// IdentityKind tells which side of the member/visitor union is populated.
type IdentityKind string

const (
	IdentityMember  IdentityKind = "MEMBER"
	IdentityVisitor IdentityKind = "VISITOR"
)

// ResolvedIdentity is the outcome of identity resolution: exactly one of
// Member or Visitor is set. Rejection is reported as an error instead.
type ResolvedIdentity struct {
	Kind    IdentityKind
	Member  *Member
	Visitor *Visitor
}

func MemberIdentity(m *Member) ResolvedIdentity {
	return ResolvedIdentity{Kind: IdentityMember, Member: m}
}

func VisitorIdentity(v Visitor) ResolvedIdentity {
	return ResolvedIdentity{Kind: IdentityVisitor, Visitor: &v}
}
