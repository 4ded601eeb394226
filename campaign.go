package taverna

// CampaignStatus is where a campaign is in its life.
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignArchived  CampaignStatus = "ARCHIVED"
)

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignActive, CampaignPaused, CampaignCompleted, CampaignArchived:
		return true
	}
	return false
}

// Role is a user's role inside one campaign.
type Role string

const (
	RoleDM     Role = "DM"
	RolePlayer Role = "PLAYER"
)

// PlatformRole is a user's role on the whole platform.
type PlatformRole string

const (
	PlatformUser  PlatformRole = "USER"
	PlatformAdmin PlatformRole = "ADMIN"
)

// Valid reports whether r is a known platform role.
func (r PlatformRole) Valid() bool {
	return r == PlatformUser || r == PlatformAdmin
}

const (
	// DefaultMaxPlayers is used when a campaign is created without a limit.
	DefaultMaxPlayers = 6

	// MaxPlayersLimit caps the seats a campaign can offer.
	MaxPlayersLimit = 20
)

// CheckJoin decides whether another member may join a campaign that already
// has memberCount members (the DM included). The limit is only enforced
// here; lowering maxPlayers later does not evict anyone.
func CheckJoin(memberCount int64, maxPlayers int, alreadyMember bool) error {
	if alreadyMember {
		return ErrAlreadyMember
	}
	if memberCount >= int64(maxPlayers) {
		return ErrCampaignFull
	}
	return nil
}
