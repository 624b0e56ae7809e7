// Package wire implements the binary frame format spoken between the gateway and
// the Roblox Studio plugin.
//
// # Frames
//
// Every frame, in both directions, is a single MessagePack map:
//
//	studio  → gateway   {type: "register", place_id, place_name, game_id, job_id,
//	                     place_version, creator_id, creator_type}
//	gateway → studio    {type: "registered", studio_id: "<uuid>"}
//	gateway → studio    {tool: "RunCode", args: {...}, id: "<uuid>"}
//	studio  → gateway   {id: "<uuid>", success: true, response: <any>}
//
// MessagePack is used rather than JSON because responses routinely carry raw
// binary data and non-finite floats.
//
// # Values
//
// Response payloads are decoded into Value, a closed tagged variant that keeps
// map entries in the order the peer wrote them. Canonical turns a Value into the
// text handed back to the MCP client:
//
//	nil            → null
//	NaN, ±Inf      → NaN, Infinity, -Infinity
//	[]byte{0xde}   → de
//	[1, "a"]       → [1, a]
//	{k: v}         → {k: v}
//	ext            → <ext>
package wire
