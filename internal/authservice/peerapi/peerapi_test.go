package peerapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/discretgraph/graphauth/internal/authservice"
	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/metrics"
	"github.com/discretgraph/graphauth/internal/roomsync"
	"github.com/discretgraph/graphauth/internal/writer"
)

// fakeWriter acknowledges every request as successful, off-goroutine,
// standing in for the durable BatchedWriter in HTTP-layer tests.
type fakeWriter struct{}

func (fakeWriter) Submit(ctx context.Context, req writer.Request) error {
	go func() {
		switch r := req.(type) {
		case writer.MutationRequest:
			r.Reply <- writer.Result{}
		case writer.RoomMutationRequest:
			r.Callback <- writer.RoomMutationWrite{Rooms: r.Rooms}
		case writer.RoomNodeRequest:
			r.Callback <- writer.RoomNodeWrite{RoomNode: r.RoomNode}
		case writer.DeletionRequest:
			r.Reply <- writer.Result{}
		case writer.FullNodeRequest:
			r.Reply <- writer.Result{}
		}
	}()
	return nil
}

func newTestServer(t *testing.T) (*Server, []byte) {
	t.Helper()
	svc := authservice.NewService(fakeWriter{}, nil, metrics.NewRecorder())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Run(ctx)

	secret := []byte("test-peer-secret")
	return NewServer(svc, ":0", secret, metrics.NewRecorder(), true), secret
}

func TestHealthEndpointRequiresNoAuth(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPeerRouteRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/peer/rooms/"+base64.URLEncoding.EncodeToString([]byte("room-x"))+"/node", nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPeerRoundTripPushThenPull(t *testing.T) {
	s, secret := newTestServer(t)
	owner, err := crypto.GenerateSigner()
	require.NoError(t, err)

	token, err := GenerateToken(secret, "peer-1", time.Hour)
	require.NoError(t, err)

	roomID := []byte("room-peerapi")
	adminID := []byte("admin-peerapi")
	body, err := graph.EncodeUserBody(owner.VerifyingKey(), true)
	require.NoError(t, err)

	adminNode := &graph.Node{ID: adminID, Entity: graph.EntityUserAuth, CDate: 1, MDate: 1, RoomID: roomID, JSON: body}
	require.NoError(t, adminNode.Sign(owner))
	adminEdge := &graph.Edge{Src: roomID, Label: "admin", CDate: 1, Dest: adminID}
	require.NoError(t, adminEdge.Sign(owner))
	roomRow := &graph.Node{ID: roomID, Entity: graph.EntityRoom, CDate: 1, MDate: 1}
	require.NoError(t, roomRow.Sign(owner))

	remote := &roomsync.RoomNode{Node: roomRow, AdminEdges: []*graph.Edge{adminEdge}, AdminNodes: []*roomsync.UserNode{{Node: adminNode}}}
	payload, err := json.Marshal(remote)
	require.NoError(t, err)

	encodedID := base64.URLEncoding.EncodeToString(roomID)

	pushReq := httptest.NewRequest(http.MethodPost, "/peer/rooms/"+encodedID+"/node", bytes.NewReader(payload))
	pushReq.Header.Set("Authorization", "Bearer "+token)
	pushRec := httptest.NewRecorder()
	s.router().ServeHTTP(pushRec, pushReq)
	require.Equal(t, http.StatusOK, pushRec.Code)

	pullReq := httptest.NewRequest(http.MethodGet, "/peer/rooms/"+encodedID+"/node", nil)
	pullReq.Header.Set("Authorization", "Bearer "+token)
	pullRec := httptest.NewRecorder()
	s.router().ServeHTTP(pullRec, pullReq)
	require.Equal(t, http.StatusOK, pullRec.Code)

	var got roomsync.RoomNode
	require.NoError(t, json.Unmarshal(pullRec.Body.Bytes(), &got))
	require.Equal(t, roomID, got.Node.ID)
}
