package authservice

import (
	"context"
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/discretgraph/graphauth/internal/deletion"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/metrics"
	"github.com/discretgraph/graphauth/internal/mutation"
	"github.com/discretgraph/graphauth/internal/room"
	"github.com/discretgraph/graphauth/internal/roomsync"
	"github.com/discretgraph/graphauth/internal/store"
	"github.com/discretgraph/graphauth/internal/writer"
)

// Service is the single owner of in-memory room state. It runs a
// cooperative, single-threaded loop over two bounded channels: a
// primary queue for incoming requests and a room-mutation callback
// queue the writer uses to hand control back once a room-shaping
// write has been durably committed. The callback queue is drained
// with priority so the batched writer, which can itself be blocked
// waiting for this loop to consume an earlier callback, never
// deadlocks against the primary queue filling up.
//
// Alongside the domain room.Room map (what the validators evaluate
// against) the service separately tracks, per room, the last
// roomsync.RoomNode it has assembled or reconciled — the
// node/edge-level representation the reconciler operates on. A room
// created or rebuilt only through Load or an ordinary room-shaping
// Mutation has no cached RoomNode yet; roomNodeFor lazily rebuilds one
// from the durable row store (roomsync.BuildRoomNode) the first time
// it is needed, since an ordinary room Mutation already persists every
// admin/user_admin/authorisation row and edge the reconciler needs —
// only the in-memory node/edge projection was missing.
type Service struct {
	primary  chan Message
	callback chan Message

	writer writer.Writer
	rows   store.RowStore
	events *EventBus

	mutationValidator *mutation.Validator
	deletionValidator *deletion.Validator

	rooms     mutation.MapLookup
	roomNodes map[string]*roomsync.RoomNode

	metrics *metrics.Recorder
	log     *logrus.Entry
}

// NewService returns a Service ready to Run. w is the durable writer
// every accepted request is forwarded to; rows is the same row store w
// writes through, used to rebuild a RoomNode for a room that has only
// ever been shaped by an ordinary Mutation or Load. rec may be nil, in
// which case no metrics are recorded.
func NewService(w writer.Writer, rows store.RowStore, rec *metrics.Recorder) *Service {
	return &Service{
		primary:           make(chan Message, 256),
		callback:          make(chan Message, 256),
		writer:            w,
		rows:              rows,
		events:            NewEventBus(),
		mutationValidator: mutation.NewValidator(),
		deletionValidator: deletion.NewValidator(),
		rooms:             mutation.MapLookup{},
		roomNodes:         map[string]*roomsync.RoomNode{},
		metrics:           rec,
		log:               logrus.WithField("component", "authservice"),
	}
}

// roomNodeFor returns the RoomNode this service holds for roomID,
// rebuilding it from the row store and caching the result if only a
// room.Room projection (no RoomNode) has been assembled so far. It
// returns (nil, nil) if roomID names no room this service knows at
// all.
func (s *Service) roomNodeFor(ctx context.Context, roomID []byte) (*roomsync.RoomNode, error) {
	key := base64.StdEncoding.EncodeToString(roomID)
	if rn, ok := s.roomNodes[key]; ok {
		return rn, nil
	}
	if _, ok := s.rooms[key]; !ok {
		return nil, nil
	}
	rn, err := roomsync.BuildRoomNode(ctx, s.rows, roomID)
	if err != nil {
		return nil, err
	}
	s.roomNodes[key] = rn
	return rn, nil
}

func (s *Service) observeMutation(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveMutation(outcome)
	}
}

func (s *Service) observeDeletion(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveDeletion(outcome)
	}
}

func (s *Service) observeReconcile(outcome string, changed bool) {
	if s.metrics != nil {
		s.metrics.ObserveReconcile(outcome, changed)
	}
}

// Events returns the service's RoomModified event bus.
func (s *Service) Events() *EventBus { return s.events }

// Submit enqueues msg on the primary queue, blocking if it is full or
// until ctx is done.
func (s *Service) Submit(ctx context.Context, msg Message) error {
	select {
	case s.primary <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the service's single goroutine: every mutation of s.rooms or
// s.roomNodes happens here, so none of it needs synchronisation.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("authorisation service started")
	for {
		if s.metrics != nil {
			s.metrics.SetQueueDepth("primary", len(s.primary))
			s.metrics.SetQueueDepth("callback", len(s.callback))
		}

		// The callback queue is checked first, non-blocking: a pending
		// writeback must never wait behind a burst of new primary
		// requests, since the writer may itself be blocked delivering
		// it.
		select {
		case msg := <-s.callback:
			s.dispatch(ctx, msg)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			s.log.Info("authorisation service stopped")
			return
		case msg := <-s.callback:
			s.dispatch(ctx, msg)
		case msg := <-s.primary:
			s.dispatch(ctx, msg)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case Load:
		s.handleLoad(m)
	case Mutation:
		s.handleMutation(ctx, m)
	case Deletion:
		s.handleDeletion(ctx, m)
	case RoomNodeAdd:
		s.handleRoomNodeAdd(ctx, m)
	case RoomNodeGet:
		s.handleRoomNodeGet(ctx, m)
	case RoomForUser:
		s.handleRoomForUser(m)
	case AddFullNode:
		s.handleAddFullNode(ctx, m)
	case roomMutationWriteback:
		s.handleRoomMutationWriteback(m)
	case roomNodeWriteback:
		s.handleRoomNodeWriteback(m)
	default:
		s.log.WithField("type", m).Warn("unknown message type")
	}
}

func (s *Service) handleLoad(m Load) {
	rooms, err := room.LoadJSON(m.Snapshot)
	if err != nil {
		replyErr(m.Reply, err)
		return
	}
	s.rooms = rooms
	s.roomNodes = map[string]*roomsync.RoomNode{}
	replyErr(m.Reply, nil)
}

// handleMutation validates m.Query and forwards the resulting rows to
// the writer. A mutation that touches no room replies as soon as the
// writer acknowledges the write, since there is no in-memory state to
// update. A mutation that shapes one or more rooms instead defers its
// reply to the callback queue: the speculative Room clones the
// validator already built must not be merged into s.rooms until the
// writer has durably committed them.
func (s *Service) handleMutation(ctx context.Context, m Mutation) {
	rooms, err := s.mutationValidator.ValidateMutation(s.rooms, m.Signer, m.Now, m.Query)
	if err != nil {
		s.observeMutation("rejected")
		replyMutation(m.Reply, err)
		return
	}

	nodes, edges, edgeDeletions, err := collectRows(m.Signer, m.Query.Roots)
	if err != nil {
		s.observeMutation("rejected")
		replyMutation(m.Reply, err)
		return
	}

	if len(rooms) == 0 {
		go s.forwardMutation(ctx, nodes, edges, edgeDeletions, m.Reply)
		return
	}

	cb := make(chan writer.RoomMutationWrite, 1)
	req := writer.RoomMutationRequest{Nodes: nodes, Edges: edges, Rooms: rooms, Callback: cb}
	if err := s.writer.Submit(ctx, req); err != nil {
		s.observeMutation("rejected")
		replyMutation(m.Reply, err)
		return
	}
	go s.awaitRoomMutationWrite(ctx, cb, rooms, m.Reply)
}

// forwardMutation submits an ordinary (non-room) mutation's rows
// directly and relays the writer's result to the caller, without
// involving the service's run loop: nothing it touches is part of the
// in-memory room state the loop owns.
func (s *Service) forwardMutation(ctx context.Context, nodes []*graph.Node, edges []*graph.Edge, edgeDeletions []*graph.EdgeDeletionEntry, reply chan<- MutationReply) {
	res := make(chan writer.Result, 1)
	req := writer.MutationRequest{Nodes: nodes, Edges: edges, EdgeDeletions: edgeDeletions, Reply: res}
	if err := s.writer.Submit(ctx, req); err != nil {
		s.observeMutation("rejected")
		replyMutation(reply, err)
		return
	}
	select {
	case r := <-res:
		if r.Err != nil {
			s.observeMutation("rejected")
		} else {
			s.observeMutation("accepted")
		}
		replyMutation(reply, r.Err)
	case <-ctx.Done():
		s.observeMutation("rejected")
		replyMutation(reply, ctx.Err())
	}
}

// awaitRoomMutationWrite waits for the writer's acknowledgement off
// the service's goroutine, then re-enters the run loop as a
// roomMutationWriteback so the in-memory room map is only ever
// mutated from Run.
func (s *Service) awaitRoomMutationWrite(ctx context.Context, cb <-chan writer.RoomMutationWrite, rooms []*room.Room, reply chan<- MutationReply) {
	select {
	case w := <-cb:
		s.submitCallback(ctx, roomMutationWriteback{write: w, rooms: rooms, reply: reply})
	case <-ctx.Done():
		s.observeMutation("rejected")
		replyMutation(reply, ctx.Err())
	}
}

func (s *Service) handleRoomMutationWriteback(m roomMutationWriteback) {
	if m.write.Err != nil {
		s.observeMutation("rejected")
		replyMutation(m.reply, m.write.Err)
		return
	}
	for _, rm := range m.rooms {
		s.rooms[base64.StdEncoding.EncodeToString(rm.ID)] = rm
		s.events.Publish(RoomModified{RoomID: rm.ID})
	}
	s.observeMutation("accepted")
	replyMutation(m.reply, nil)
}

func (s *Service) handleDeletion(ctx context.Context, m Deletion) {
	res, err := s.deletionValidator.ValidateDeletion(s.rooms, m.Signer, m.Now, m.Query)
	if err != nil {
		s.observeDeletion("rejected")
		replyDeletion(m.Reply, err)
		return
	}
	reply := make(chan writer.Result, 1)
	req := writer.DeletionRequest{Result: res, Reply: reply}
	if err := s.writer.Submit(ctx, req); err != nil {
		s.observeDeletion("rejected")
		replyDeletion(m.Reply, err)
		return
	}
	go func() {
		select {
		case r := <-reply:
			if r.Err != nil {
				s.observeDeletion("rejected")
			} else {
				s.observeDeletion("accepted")
			}
			replyDeletion(m.Reply, r.Err)
		case <-ctx.Done():
			s.observeDeletion("rejected")
			replyDeletion(m.Reply, ctx.Err())
		}
	}()
}

// handleRoomNodeAdd reconciles m.Remote against whatever RoomNode the
// service has previously assembled or can rebuild for m.RoomID (nil
// only if this is genuinely the first time the room is seen, which
// Reconcile treats as a bootstrap). A merge that changes nothing is
// acknowledged without touching the writer at all.
func (s *Service) handleRoomNodeAdd(ctx context.Context, m RoomNodeAdd) {
	local, err := s.roomNodeFor(ctx, m.RoomID)
	if err != nil {
		s.observeReconcile("rejected", false)
		m.Reply <- RoomNodeAddReply{Err: err}
		return
	}

	merged, needsUpdate, err := roomsync.Reconcile(local, m.Remote)
	if err != nil {
		s.observeReconcile("rejected", false)
		m.Reply <- RoomNodeAddReply{Err: err}
		return
	}
	if !needsUpdate {
		s.observeReconcile("accepted", false)
		m.Reply <- RoomNodeAddReply{RoomNode: merged, NeedsUpdate: false}
		return
	}

	cb := make(chan writer.RoomNodeWrite, 1)
	req := writer.RoomNodeRequest{RoomNode: merged, Callback: cb}
	if err := s.writer.Submit(ctx, req); err != nil {
		s.observeReconcile("rejected", false)
		m.Reply <- RoomNodeAddReply{Err: err}
		return
	}
	go s.awaitRoomNodeWrite(ctx, cb, m.Reply)
}

func (s *Service) awaitRoomNodeWrite(ctx context.Context, cb <-chan writer.RoomNodeWrite, reply chan<- RoomNodeAddReply) {
	select {
	case w := <-cb:
		s.submitCallback(ctx, roomNodeWriteback{write: w, needsUpdate: true, reply: reply})
	case <-ctx.Done():
		s.observeReconcile("rejected", false)
		reply <- RoomNodeAddReply{Err: ctx.Err()}
	}
}

func (s *Service) handleRoomNodeWriteback(m roomNodeWriteback) {
	if m.write.Err != nil {
		s.observeReconcile("rejected", false)
		m.reply <- RoomNodeAddReply{Err: m.write.Err}
		return
	}
	rn := m.write.RoomNode
	s.roomNodes[base64.StdEncoding.EncodeToString(rn.Node.ID)] = rn
	if rm, err := roomsync.ParseRoomNode(rn); err == nil {
		s.rooms[base64.StdEncoding.EncodeToString(rm.ID)] = rm
	}
	s.events.Publish(RoomModified{RoomID: rn.Node.ID})
	s.observeReconcile("accepted", true)
	m.reply <- RoomNodeAddReply{RoomNode: rn, NeedsUpdate: m.needsUpdate}
}

// handleRoomNodeGet answers with the RoomNode for m.RoomID, rebuilding
// it from the row store via roomNodeFor if the room has so far only
// been shaped by Load or an ordinary room Mutation; nil if the room is
// unknown altogether.
func (s *Service) handleRoomNodeGet(ctx context.Context, m RoomNodeGet) {
	rn, err := s.roomNodeFor(ctx, m.RoomID)
	if err != nil {
		m.Reply <- RoomNodeGetReply{Err: err}
		return
	}
	m.Reply <- RoomNodeGetReply{RoomNode: rn}
}

func (s *Service) handleRoomForUser(m RoomForUser) {
	var ids [][]byte
	for _, rm := range s.rooms {
		if rm.IsUserValidAt(m.VerifyingKey, m.Date) {
			ids = append(ids, rm.ID)
		}
	}
	m.Reply <- ids
}

// handleAddFullNode admits each pre-signed candidate row using the
// same right predicate §4.1 applies to a row mutating itself: a
// FullNodeCandidate carries no prior row to compare against, so it is
// evaluated as if VerifyingKey were both the row's author and its
// subject, i.e. under RightMutateSelf.
func (s *Service) handleAddFullNode(ctx context.Context, m AddFullNode) {
	var accepted []FullNodeCandidate
	var rejected []FullNodeRejection

	for _, c := range m.Candidates {
		if len(c.RoomID) == 0 {
			accepted = append(accepted, c)
			continue
		}
		rm, ok := s.rooms[base64.StdEncoding.EncodeToString(c.RoomID)]
		if !ok {
			rejected = append(rejected, FullNodeRejection{Candidate: c, Err: room.ErrUnknownRoom})
			continue
		}
		if !rm.Can(c.VerifyingKey, c.Entity, c.Date, room.RightMutateSelf) {
			rejected = append(rejected, FullNodeRejection{
				Candidate: c,
				Err:       &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: c.Entity, Room: c.RoomID},
			})
			continue
		}
		accepted = append(accepted, c)
	}

	m.Reply <- AddFullNodeReply{Accepted: accepted, Rejected: rejected}
}

// submitCallback enqueues msg on the callback queue, blocking if full
// or until ctx is done. Used only by goroutines relaying a writer
// acknowledgement back into Run.
func (s *Service) submitCallback(ctx context.Context, msg Message) {
	select {
	case s.callback <- msg:
	case <-ctx.Done():
	}
}

func replyErr(ch chan<- error, err error) {
	if ch == nil {
		return
	}
	ch <- err
}

func replyMutation(ch chan<- MutationReply, err error) {
	if ch == nil {
		return
	}
	ch <- MutationReply{Err: err}
}

func replyDeletion(ch chan<- DeletionReply, err error) {
	if ch == nil {
		return
	}
	ch <- DeletionReply{Err: err}
}
