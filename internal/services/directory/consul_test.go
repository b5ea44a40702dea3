package directory

import (
	"testing"

	consul "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"

	"fragmatch/internal/services/cluster"
)

type nilSource struct{}

func (nilSource) GetClient() *consul.Client { return nil }

func TestConsulBackend_NotReadyWithoutClient(t *testing.T) {
	b := NewConsulBackend(nilSource{}, "fragmatch", "10.0.0.1", 7777)
	assert.ErrorIs(t, b.Ready(), cluster.ErrNotConnected)
	assert.Equal(t, "fragmatch-session", b.serviceName())
	assert.Equal(t, "fragmatch/sessions/game-1/participants", b.participantsKey("game-1"))
}

func TestSessionTagsAndMeta(t *testing.T) {
	s := validSettings()
	assert.Equal(t, []string{TagPresence, TagLAN}, sessionTags(s))

	s.LAN = false
	assert.Equal(t, []string{TagPresence}, sessionTags(s))

	meta := sessionMeta("game", s)
	assert.Equal(t, "0420", meta[AttrRoomCode])
	assert.Equal(t, "Lvl_Shooter", meta[AttrMapName])
	assert.Equal(t, "2", meta[metaMaxParticipants])
	assert.Equal(t, "game", meta[metaSessionName])
}

func TestSummaryFromEntry(t *testing.T) {
	entry := &consul.ServiceEntry{
		Node: &consul.Node{Address: "192.168.1.10"},
		Service: &consul.AgentService{
			ID:   "game-abc",
			Port: 7777,
			Meta: map[string]string{
				AttrRoomCode:        "0420",
				AttrMapName:         "Lvl_Shooter",
				metaMaxParticipants: "4",
				metaSessionName:     "game",
			},
		},
	}

	s := summaryFromEntry(entry, 3)
	assert.Equal(t, "game-abc", s.ID)
	assert.Equal(t, "game", s.Name)
	assert.Equal(t, "0420", s.RoomCode())
	assert.Equal(t, "192.168.1.10:7777", s.ConnectString())
	assert.Equal(t, 1, s.OpenSlots)
	assert.NotContains(t, s.Attributes, metaMaxParticipants)

	full := summaryFromEntry(entry, 9)
	assert.Equal(t, 0, full.OpenSlots)
}
