// Package tools defines the MCP tool catalogue exposed by the gateway.
//
// Two families of tools share one Registry:
//
//   - Studio tools (run_code, insert_model, get_console_output,
//     get_studio_mode, start_stop_play, run_script_in_play_mode) validate
//     their arguments against a JSON schema and forward them to the studio
//     the calling session resolves to.
//   - Management tools (list_studios, get_studio, set_studio) answer from the
//     gateway's registry without touching any studio.
//
// Every failure a model can act on (no studio, ambiguous selection, stale
// selection, a studio-side error, a disconnect) comes back as a Result with
// IsError set and a message that says what to do next. Only unknown tool
// names are reported as Go errors.
package tools
