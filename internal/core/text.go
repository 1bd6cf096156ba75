package core

// Enums are encoded by name on the wire.

func (s CallStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
func (k DisconnectKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (s MembershipState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k MembershipEventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k MediaEventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k PendingKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
