// ABOUTME: Server identity and the usage guidance advertised on MCP initialize.
// ABOUTME: Tells agents how play, run and stop modes change which tools are useful.

package tools

// ServerName and ServerTitle identify the gateway to MCP clients.
const (
	ServerName  = "Roblox_Studio"
	ServerTitle = "Roblox Studio MCP Server"
)

// Instructions tells the model how to use the tools together.
const Instructions = "You must aware of current studio mode before using any tools, infer the mode from conversation context or get_studio_mode.\n" +
	"User run_code to query data from Roblox Studio place or to change it\n" +
	"After calling run_script_in_play_mode, the datamodel status will be reset to stop mode.\n" +
	"Prefer using start_stop_play tool instead run_script_in_play_mode, Only used run_script_in_play_mode to run one time unit test code on server datamodel.\n" +
	"When several studios are connected, call list_studios and then set_studio before any other tool.\n"
