// Package protocol implements the Starbound wire protocol: frame framing
// with signed-VLQ lengths and optional zlib compression, the fixed table of
// packet type ids, the per-type payload decoders, and payload builders for
// frames the proxy originates itself. All multi-byte integers on the wire
// are big-endian.
package protocol

// Packet type ids for protocol version 747. The set is fixed and closed;
// Starbridge only speaks this one protocol version.
const (
	PktProtocolRequest         uint8 = 0
	PktProtocolResponse        uint8 = 1
	PktServerDisconnect        uint8 = 2
	PktConnectSuccess          uint8 = 3
	PktConnectFailure          uint8 = 4
	PktHandshakeChallenge      uint8 = 5
	PktChatReceived            uint8 = 6
	PktUniverseTimeUpdate      uint8 = 7
	PktCelestialResponse       uint8 = 8
	PktPlayerWarpResult        uint8 = 9
	PktPlanetTypeUpdate        uint8 = 10
	PktPause                   uint8 = 11
	PktClientConnect           uint8 = 12
	PktClientDisconnectRequest uint8 = 13
	PktHandshakeResponse       uint8 = 14
	PktPlayerWarp              uint8 = 15
	PktFlyShip                 uint8 = 16
	PktChatSent                uint8 = 17
	PktCelestialRequest        uint8 = 18
	PktClientContextUpdate     uint8 = 19
	PktWorldStart              uint8 = 20
	PktWorldStop               uint8 = 21
	PktWorldLayoutUpdate       uint8 = 22
	PktWorldParametersUpdate   uint8 = 23
	PktCentralStructureUpdate  uint8 = 24
	PktTileArrayUpdate         uint8 = 25
	PktTileUpdate              uint8 = 26
	PktTileLiquidUpdate        uint8 = 27
	PktTileDamageUpdate        uint8 = 28
	PktTileModificationFailure uint8 = 29
	PktGiveItem                uint8 = 30
	PktEnvironmentUpdate       uint8 = 31
	PktUpdateTileProtection    uint8 = 32
	PktSetDungeonGravity       uint8 = 33
	PktSetDungeonBreathable    uint8 = 34
	PktSetPlayerStart          uint8 = 35
	PktFindUniqueEntityResp    uint8 = 36
	PktModifyTileList          uint8 = 37
	PktDamageTileGroup         uint8 = 38
	PktCollectLiquid           uint8 = 39
	PktRequestDrop             uint8 = 40
	PktSpawnEntity             uint8 = 41
	PktConnectWire             uint8 = 42
	PktDisconnectAllWires      uint8 = 43
	PktWorldClientStateUpdate  uint8 = 44
	PktFindUniqueEntity        uint8 = 45
	PktEntityCreate            uint8 = 46
	PktEntityUpdate            uint8 = 47
	PktEntityDestroy           uint8 = 48
	PktEntityInteract          uint8 = 49
	PktEntityInteractResult    uint8 = 50
	PktHitRequest              uint8 = 51
	PktDamageRequest           uint8 = 52
	PktDamageNotification      uint8 = 53
	PktEntityMessage           uint8 = 54
	PktEntityMessageResponse   uint8 = 55
	PktUpdateWorldProperties   uint8 = 56
	PktStepUpdate              uint8 = 57
	PktSystemWorldStart        uint8 = 58
	PktSystemWorldUpdate       uint8 = 59
	PktSystemObjectCreate      uint8 = 60
	PktSystemObjectDestroy     uint8 = 61
	PktSystemShipCreate        uint8 = 62
	PktSystemShipDestroy       uint8 = 63
	PktSystemObjectSpawn       uint8 = 64
)

// PacketCount is the number of packet types in this protocol version.
const PacketCount = 65

// packetNames maps each type id to its canonical packet name. The dispatch
// pipeline derives hook names from these ("on_" + name), so extensions
// register against "on_chat_sent", "on_entity_message" and so on.
var packetNames = [PacketCount]string{
	"protocol_request",
	"protocol_response",
	"server_disconnect",
	"connect_success",
	"connect_failure",
	"handshake_challenge",
	"chat_received",
	"universe_time_update",
	"celestial_response",
	"player_warp_result",
	"planet_type_update",
	"pause",
	"client_connect",
	"client_disconnect_request",
	"handshake_response",
	"player_warp",
	"fly_ship",
	"chat_sent",
	"celestial_request",
	"client_context_update",
	"world_start",
	"world_stop",
	"world_layout_update",
	"world_parameters_update",
	"central_structure_update",
	"tile_array_update",
	"tile_update",
	"tile_liquid_update",
	"tile_damage_update",
	"tile_modification_failure",
	"give_item",
	"environment_update",
	"update_tile_protection",
	"set_dungeon_gravity",
	"set_dungeon_breathable",
	"set_player_start",
	"find_unique_entity_response",
	"modify_tile_list",
	"damage_tile_group",
	"collect_liquid",
	"request_drop",
	"spawn_entity",
	"connect_wire",
	"disconnect_all_wires",
	"world_client_state_update",
	"find_unique_entity",
	"entity_create",
	"entity_update",
	"entity_destroy",
	"entity_interact",
	"entity_interact_result",
	"hit_request",
	"damage_request",
	"damage_notification",
	"entity_message",
	"entity_message_response",
	"update_world_properties",
	"step_update",
	"system_world_start",
	"system_world_update",
	"system_object_create",
	"system_object_destroy",
	"system_ship_create",
	"system_ship_destroy",
	"system_object_spawn",
}

// hookNames holds the precomputed "on_<name>" form for each type id.
var hookNames [PacketCount]string

// packetIDs maps packet names back to their type id.
var packetIDs = make(map[string]uint8, PacketCount)

func init() {
	for id, name := range packetNames {
		hookNames[id] = "on_" + name
		packetIDs[name] = uint8(id)
	}
}

// PacketName returns the canonical name for a type id, or "" if the id is
// outside the protocol's fixed range.
func PacketName(typeID uint8) string {
	if int(typeID) >= PacketCount {
		return ""
	}
	return packetNames[typeID]
}

// HookName returns the dispatch hook name ("on_<packet name>") for a type
// id, or "" for ids outside the fixed range.
func HookName(typeID uint8) string {
	if int(typeID) >= PacketCount {
		return ""
	}
	return hookNames[typeID]
}

// PacketID resolves a canonical packet name to its type id.
func PacketID(name string) (uint8, bool) {
	id, ok := packetIDs[name]
	return id, ok
}
