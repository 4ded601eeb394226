// Package taverna holds the game rules behind the Taverna tabletop server:
// session lifecycle, initiative order, combat log events, dice, fog of war
// and chat visibility. Persistence and HTTP live in cmd/server.
package taverna

const (
	// GCPProject is the project this runs in.
	GCPProject = "icco-cloud"

	// Service is the name of this service.
	Service = "taverna"
)
