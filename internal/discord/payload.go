package discord

import (
	"github.com/goccy/go-json"
)

// Opcode is a gateway payload opcode.
type Opcode int

const (
	// OpDispatch carries an event in t/d with sequence s.
	OpDispatch Opcode = 0
	// OpHeartbeat is sent by us periodically, or by the server to request one.
	OpHeartbeat Opcode = 1
	// OpIdentify starts a new session.
	OpIdentify Opcode = 2
	// OpReconnect asks the client to reconnect.
	OpReconnect Opcode = 7
	// OpInvalidSession means the session must be discarded.
	OpInvalidSession Opcode = 9
	// OpHello is the first frame and carries the heartbeat interval.
	OpHello Opcode = 10
	// OpHeartbeatACK acknowledges a heartbeat.
	OpHeartbeatACK Opcode = 11
)

// Dispatch event names handled by the session.
const (
	EventReady          = "READY"
	EventPresenceUpdate = "PRESENCE_UPDATE"
	EventGuildCreate    = "GUILD_CREATE"
)

// frame is the gateway envelope.
type frame struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type outboundFrame struct {
	Op Opcode `json:"op"`
	D  any    `json:"d"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             struct {
		ID string `json:"id"`
	} `json:"user"`
}

// gatewayActivity is an activity object inside a presence update.
type gatewayActivity struct {
	Name          string `json:"name"`
	Type          int    `json:"type"`
	Details       string `json:"details"`
	State         string `json:"state"`
	ApplicationID string `json:"application_id"`
	Timestamps    *struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	} `json:"timestamps"`
	Assets *struct {
		LargeImage string `json:"large_image"`
		LargeText  string `json:"large_text"`
	} `json:"assets"`
}

type presenceUpdateData struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Status     string            `json:"status"`
	Activities []gatewayActivity `json:"activities"`
}

type guildCreateData struct {
	Presences []presenceUpdateData `json:"presences"`
}
