package models

// Subscriber is a registered notification client.
type Subscriber struct {
	ClientName        string `json:"ClientName"`
	Uri               string `json:"Uri"`
	SendPathInfo      bool   `json:"SendPathInfo"`
	SendData          bool   `json:"SendData"`
	HeartBeatInterval int    `json:"HeartBeatInterval"` // ms, 0 = no heartbeat
}
