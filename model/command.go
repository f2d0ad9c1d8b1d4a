package model

// Commands understood by the backend.
const (
	CommandSetConfig = "set_config"
	CommandGetConfig = "get_config"
	CommandAppReady  = "app_ready"
)

// EventConfigUpdated is pushed to connected clients after the backend
// configuration has been replaced.
const EventConfigUpdated = "config_updated"

// SetConfigArgs is the argument envelope of set_config.
type SetConfigArgs struct {
	NewCfg Config `json:"newCfg"`
}
