package signaling

import "github.com/pion/webrtc/v4"

// TURNServer describes a relay endpoint with credentials.
type TURNServer struct {
	URL        string
	Username   string
	Credential string
}

// buildICEServers assembles the ordered ICE server list: STUN entries (no
// credentials) first, TURN entries after. The transport layer consumes the
// result opaquely.
func buildICEServers(stunURLs []string, turnServers []TURNServer) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(stunURLs)+len(turnServers))

	for _, url := range stunURLs {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}
	for _, turn := range turnServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{turn.URL},
			Username:   turn.Username,
			Credential: turn.Credential,
		})
	}

	return servers
}
