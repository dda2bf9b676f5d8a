package runtime

import (
	"fmt"

	"github.com/dreamware/veil/internal/cache"
	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/fec"
	"github.com/dreamware/veil/internal/forwarding"
	"github.com/dreamware/veil/internal/lane"
	"github.com/dreamware/veil/internal/persistence"
	"github.com/dreamware/veil/internal/policy"
	"github.com/dreamware/veil/internal/tag"
	"github.com/dreamware/veil/internal/tracker"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// laneFast and laneFallback are the two conventional lane names the node
// rebalances fanout between; any additional registered lane keeps a fixed
// share of zero from FanoutShares and is polled for inbound frames each
// tick, but SelectForwards never assigns forwards to it.
const (
	laneFast     = "fast"
	laneFallback = "fallback"
)

// admittedShard is a shard this node accepted during the current tick and
// still needs to run through the forwarding queue (spec §4.10 step 4).
type admittedShard struct {
	root       [32]byte
	index      uint16
	k, n       uint16
	tag        codec.Tag
	sourcePeer string
}

// Node is the single-threaded VEIL runtime: it owns a cache, a
// reconstruction tracker, a forwarding engine, a lane manager, and a
// policy engine, and drives them all forward one tick at a time. Node is
// not safe for concurrent use; callers own their own scheduling (spec
// §4.10).
type Node struct {
	cfg   Config
	hooks Hooks

	cache     *cache.Cache
	tracker   *tracker.Tracker
	forwarder *forwarding.Engine
	lanes     *lane.Manager
	policy    *policy.Engine
	log       *logrus.Logger

	subscriptions map[codec.Tag]struct{}
	peers         []string

	// peerPublisher binds a transport peer id to the publisher key a
	// verified signed reconstruction attributed to it (spec §4.6 rule 4);
	// rootContributors tracks, per in-flight object root, which peers
	// delivered an admitted shard so deliverPayload can populate that
	// binding once the object reconstructs.
	peerPublisher    map[string]policy.PublisherID
	rootContributors map[[32]byte]map[string]struct{}

	admittedThisTick []admittedShard
	currentTickMs    int64

	lastLaneHealthEmitMs int64
	lastSnapshotAtMs     int64
	snapshotIntervalMs   int64
}

// NewNode validates cfg and constructs a Node wired from it. An invalid
// Config is a construction-time fatal error (spec §7 "Configuration");
// there is no partially-built Node to recover from.
func NewNode(cfg Config, hooks Hooks) (*Node, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("runtime: rejecting invalid configuration")
		return nil, fmt.Errorf("runtime: %w", err)
	}

	pol := policy.New()
	for _, p := range cfg.BlockedPeers {
		pol.Block(policy.PublisherID(p))
	}

	fwd := forwarding.New(forwarding.Config{
		FastFanout:        cfg.FastFanout,
		FallbackFanout:    cfg.FallbackFanout,
		MaxForwardHops:    cfg.MaxForwardHops,
		UnknownFloorRatio: cfg.UnknownForwardFloor,
		SeenSetMaxEntries: cfg.MaxSeenShardIDs,
		SeenSetTTLTicks:   cfg.SeenShardTTLMs,
		OpenRelay:         cfg.OpenRelay,
	}, pol)

	lanes := lane.NewManager(cfg.MinimumHealthyLaneScore)
	lanes.SetLogger(log)

	n := &Node{
		cfg:                cfg,
		hooks:              hooks,
		cache:              cache.New(cfg.MaxCacheEntries),
		tracker:            tracker.New(cfg.RequestCooldownMs),
		forwarder:          fwd,
		lanes:              lanes,
		policy:             pol,
		log:                log,
		subscriptions:      make(map[codec.Tag]struct{}),
		peerPublisher:      make(map[string]policy.PublisherID),
		rootContributors:   make(map[[32]byte]map[string]struct{}),
		snapshotIntervalMs: int64(cfg.SnapshotSecs) * 1000,
	}

	n.tracker.OnPullRequest(n.handleOutgoingPullRequest)
	n.tracker.OnReconstructed(n.handleReconstructed)
	n.tracker.OnReconstructFailed(n.handleReconstructFailed)

	return n, nil
}

// RegisterLane attaches a transport adapter under name (conventionally
// "fast" or "fallback"; any other name is carried but never rebalanced).
func (n *Node) RegisterLane(name string, adapter lane.Adapter) {
	n.lanes.Register(name, adapter)
}

// SetForwardPeers replaces the set of peers this node forwards to (spec
// §4.10 "set_forward_peers").
func (n *Node) SetForwardPeers(peers []string) {
	n.peers = append(n.peers[:0], peers...)
}

// Subscribe adds tag to this node's discovery subscriptions.
func (n *Node) Subscribe(tag codec.Tag) {
	n.subscriptions[tag] = struct{}{}
	n.forwarder.Subscribe(tag)
}

// Unsubscribe removes tag from this node's discovery subscriptions.
func (n *Node) Unsubscribe(tag codec.Tag) {
	delete(n.subscriptions, tag)
	n.forwarder.Unsubscribe(tag)
}

// ListSubscriptions returns every currently subscribed tag, in no
// particular order.
func (n *Node) ListSubscriptions() []codec.Tag {
	out := make([]codec.Tag, 0, len(n.subscriptions))
	for tag := range n.subscriptions {
		out = append(out, tag)
	}
	return out
}

// PrioritizeObjectRoot biases cache eviction in favor of root (spec
// §4.10 "prioritize_object_root").
func (n *Node) PrioritizeObjectRoot(root [32]byte, priority int32) {
	n.cache.SetPriority(root, priority)
}

// SubscribeRendezvous subscribes to every rendezvous tag a recipient
// should be watching right now (spec §4.2), using this node's configured
// epoch length and boundary overlap, and returns the tags subscribed to
// so the caller can log or persist them alongside the recipient key.
func (n *Node) SubscribeRendezvous(recipientKey []byte, nowSeconds int64, namespace uint16) []codec.Tag {
	tags := tag.RendezvousWindow(recipientKey, nowSeconds, namespace, n.cfg.EpochSeconds, n.cfg.RVOverlapSeconds)
	for _, t := range tags {
		n.Subscribe(t)
	}
	return tags
}

// FeedTag derives the time-invariant feed tag for a publisher key and
// namespace (spec §3 "Feed tag"); callers subscribe to it directly via
// Subscribe.
func (n *Node) FeedTag(publisherKey []byte, namespace uint16) codec.Tag {
	return tag.Feed(publisherKey, namespace)
}

// NotifyObject hands the runtime an object it reconstructed or obtained
// out of band (e.g. published locally), driving the same on_reconstructed
// hook a peer-assembled object would (spec §4.10 "notify_object").
func (n *Node) NotifyObject(root [32]byte, objectBytes []byte) {
	if n.hooks.OnReconstructed != nil {
		n.hooks.OnReconstructed(root, objectBytes)
	}
	n.deliverPayload(root, objectBytes)
}

// Trust, Untrust, Mute, Unmute, Block, Unblock, and Endorse mutate the
// node's policy engine directly; they take effect on the very next tick.
func (n *Node) Trust(publisher policy.PublisherID)   { n.policy.Trust(publisher) }
func (n *Node) Untrust(publisher policy.PublisherID) { n.policy.Untrust(publisher) }
func (n *Node) Mute(publisher policy.PublisherID)    { n.policy.Mute(publisher) }
func (n *Node) Unmute(publisher policy.PublisherID)  { n.policy.Unmute(publisher) }
func (n *Node) Block(publisher policy.PublisherID)   { n.policy.Block(publisher) }
func (n *Node) Unblock(publisher policy.PublisherID) { n.policy.Unblock(publisher) }
func (n *Node) Endorse(endorser, publisher policy.PublisherID, step int64) {
	n.policy.Endorse(endorser, publisher, step)
}

// Policy exposes the underlying policy engine for read-only queries
// (Tier, Score, Explain) that don't warrant a forwarding wrapper.
func (n *Node) Policy() *policy.Engine { return n.policy }

// PublishObject sizes obj's Padding field to its bucket (spec §4.3
// "Padding"), shards the result locally, caches every shard, and forwards
// each one as if freshly admitted. It returns the object's root, computed
// over the fully padded, canonical encoding.
func (n *Node) PublishObject(obj *codec.Object, k, nShards int, nowMs int64) ([32]byte, error) {
	baseline, err := codec.EncodeObject(obj)
	if err != nil {
		return [32]byte{}, fmt.Errorf("runtime: encoding object: %w", err)
	}
	target := fec.PadToBucket(len(baseline), n.cfg.BucketJitterExtraLevels)
	if extra := target - len(baseline); extra > 0 {
		if obj.Signed() {
			return [32]byte{}, fmt.Errorf("runtime: signed object's padding must already be sized to its bucket before signing")
		}
		obj.Padding = append(obj.Padding, make([]byte, extra)...)
	}

	encoded, err := codec.EncodeObject(obj)
	if err != nil {
		return [32]byte{}, fmt.Errorf("runtime: encoding padded object: %w", err)
	}
	root, err := codec.ObjectRoot(obj)
	if err != nil {
		return [32]byte{}, fmt.Errorf("runtime: hashing object: %w", err)
	}

	shards, err := fec.Shard(encoded, k, nShards, n.cfg.FECMode)
	if err != nil {
		return [32]byte{}, fmt.Errorf("runtime: sharding object: %w", err)
	}

	for idx, payload := range shards {
		n.cache.Put(root, uint16(idx), payload, nowMs)
		sh := &codec.Shard{
			Version: codec.ShardVersion, Namespace: obj.Namespace, Epoch: obj.Epoch,
			Tag: obj.Tag, ObjectRoot: root, K: uint16(k), N: uint16(nShards), Index: uint16(idx),
			Payload: payload,
		}
		n.forwardShard(admittedShard{root: root, index: sh.Index, k: sh.K, n: sh.N, tag: sh.Tag, sourcePeer: ""}, nowMs)
	}
	return root, nil
}

// RunSteps advances the runtime by n ticks, each tickIntervalMs apart,
// starting from startMs.
func (n *Node) RunSteps(steps int, startMs, tickIntervalMs int64) {
	for i := 0; i < steps; i++ {
		n.Tick(startMs + int64(i)*tickIntervalMs)
	}
}

// RunUntil advances the runtime tick by tick, tickIntervalMs apart,
// starting at startMs, until the tick timestamp reaches or passes
// deadlineMs.
func (n *Node) RunUntil(startMs, deadlineMs, tickIntervalMs int64) {
	for now := startMs; now < deadlineMs; now += tickIntervalMs {
		n.Tick(now)
	}
}

// Tick advances the runtime by one step, in the strict order spec §4.10
// requires:
//
//  1. refresh lane health and recompute scores
//  2. drain one inbound message per lane, classify and dispatch it
//  3. advance the reconstruction tracker, emitting pull requests as warranted
//  4. flush the forwarding queue for shards admitted this tick
//  5. age the seen-shard set (folded into forwarding admission itself)
//  6. persist state if the snapshot cadence elapsed
func (n *Node) Tick(nowMs int64) {
	n.admittedThisTick = n.admittedThisTick[:0]
	n.currentTickMs = nowMs

	n.lanes.Tick()
	if n.cfg.AdaptiveLaneScoring {
		fast, fallback := n.lanes.FanoutShares(n.cfg.FastFanout, n.cfg.FallbackFanout)
		n.forwarder.SetFanout(fast, fallback)
	}
	n.maybeEmitLaneHealth(nowMs)

	for _, laneName := range n.lanes.Names() {
		peer, data, ok := n.lanes.Recv(laneName)
		if !ok {
			continue
		}
		n.handleInbound(laneName, peer, data, nowMs)
	}

	n.tracker.Tick(nowMs)

	for _, a := range n.admittedThisTick {
		n.forwardShard(a, nowMs)
	}

	n.maybeSnapshot(nowMs)
}

func (n *Node) maybeEmitLaneHealth(nowMs int64) {
	if n.hooks.OnLaneHealth == nil {
		return
	}
	if n.cfg.LaneHealthEmitMs > 0 && nowMs-n.lastLaneHealthEmitMs < n.cfg.LaneHealthEmitMs {
		return
	}
	n.lastLaneHealthEmitMs = nowMs
	for _, name := range n.lanes.Names() {
		n.hooks.OnLaneHealth(name, n.lanes.Counters(name), n.lanes.Score(name))
	}
}

func (n *Node) handleInbound(laneName, peer string, data []byte, nowMs int64) {
	if pw, err := decodePullWire(data); err == nil {
		n.handleIncomingPullWire(laneName, peer, pw, nowMs)
		return
	}

	shard, err := codec.DecodeShard(data)
	if err != nil {
		n.lanes.RecordDrop(laneName)
		if n.hooks.OnIgnoredMalformed != nil {
			n.hooks.OnIgnoredMalformed(peer)
		}
		return
	}

	if !n.forwarder.IsSubscribed(shard.Tag) {
		n.lanes.RecordDrop(laneName)
		if n.hooks.OnIgnoredUnsubscribed != nil {
			n.hooks.OnIgnoredUnsubscribed(shard.Tag)
		}
		return
	}

	hash := blake2b.Sum256(data)
	if !n.forwarder.Admit(shard.Tag, hash, n.resolvePublisher(peer), nowMs) {
		n.lanes.RecordDrop(laneName)
		if n.hooks.OnIgnoredDuplicate != nil {
			n.hooks.OnIgnoredDuplicate(peer)
		}
		return
	}

	n.cache.Put(shard.ObjectRoot, shard.Index, shard.Payload, nowMs)
	n.recordContributor(shard.ObjectRoot, peer)
	n.log.WithFields(logrus.Fields{
		"object_root": fmt.Sprintf("%x", shard.ObjectRoot),
		"index":       shard.Index,
		"peer":        peer,
	}).Debug("admitted shard")
	if n.hooks.OnShard != nil {
		n.hooks.OnShard(peer, ShardMeta{
			ObjectRoot: shard.ObjectRoot, Index: shard.Index,
			K: shard.K, N: shard.N, Tag: shard.Tag,
		})
	}

	n.tracker.Admit(shard.ObjectRoot, shard.Index, shard.Payload, shard.Tag, int(shard.K), int(shard.N), n.cfg.FECMode, nowMs)

	n.admittedThisTick = append(n.admittedThisTick, admittedShard{
		root: shard.ObjectRoot, index: shard.Index, k: shard.K, n: shard.N,
		tag: shard.Tag, sourcePeer: peer,
	})
}

func (n *Node) handleIncomingPullWire(laneName, peer string, pw pullWire, nowMs int64) {
	for _, idx := range pw.want {
		payload, ok := n.cache.Get(pw.objectRoot, idx)
		if !ok {
			continue
		}
		sh := &codec.Shard{
			Version: codec.ShardVersion, Tag: pw.tag, ObjectRoot: pw.objectRoot,
			K: pw.k, N: pw.n, Index: idx, Payload: payload,
		}
		encoded, err := codec.EncodeShard(sh)
		if err != nil {
			continue
		}
		if err := n.lanes.Send(laneFast, peer, encoded); err != nil {
			if n.hooks.OnForwardError != nil {
				n.hooks.OnForwardError(laneFast, peer, err)
			}
		} else if n.hooks.OnForward != nil {
			n.hooks.OnForward(peer)
		}
	}

	if !n.cfg.EnableShardRequests || !n.forwarder.IsSubscribed(pw.tag) {
		return
	}
	if int(pw.hop) >= n.cfg.RequestHopLimit {
		return
	}
	for _, fp := range n.selectRequestFanout(peer) {
		wire := encodePullWire(pullWire{
			objectRoot: pw.objectRoot, tag: pw.tag, k: pw.k, n: pw.n,
			want: pw.want, hop: pw.hop + 1,
		})
		if err := n.lanes.Send(laneFast, fp, wire); err != nil && n.hooks.OnForwardError != nil {
			n.hooks.OnForwardError(laneFast, fp, err)
		}
	}
}

func (n *Node) selectRequestFanout(exclude string) []string {
	out := make([]string, 0, n.cfg.RequestFanout)
	for _, p := range n.peers {
		if p == exclude {
			continue
		}
		if len(out) >= n.cfg.RequestFanout {
			break
		}
		out = append(out, p)
	}
	return out
}

// handleOutgoingPullRequest is the tracker's pull-request hook: it
// encodes a VEILREQ1 wire message and sends it to this node's own
// forwarding fanout, since a missing shard is sought the same way a
// forward would be distributed.
func (n *Node) handleOutgoingPullRequest(req tracker.PullRequest) {
	if !n.cfg.EnableShardRequests {
		return
	}
	wire := encodePullWire(pullWire{
		objectRoot: req.ObjectRoot, tag: req.Tag,
		k: uint16(req.K), n: uint16(req.N), want: req.WantedIndices, hop: uint16(req.Hop),
	})
	for _, fwd := range n.forwarder.SelectForwards(toForwardingPeers(n.peers), "", req.Hop, n.currentTickMs) {
		laneName := laneNameFor(fwd.Lane)
		if err := n.lanes.Send(laneName, string(fwd.Peer), wire); err != nil && n.hooks.OnForwardError != nil {
			n.hooks.OnForwardError(laneName, string(fwd.Peer), err)
		}
	}
}

func (n *Node) handleReconstructed(root [32]byte, objectBytes []byte) {
	if n.hooks.OnReconstructed != nil {
		n.hooks.OnReconstructed(root, objectBytes)
	}
	n.deliverPayload(root, objectBytes)
}

func (n *Node) handleReconstructFailed(root [32]byte, err error) {
	n.log.WithField("object_root", fmt.Sprintf("%x", root)).WithError(err).Warn("reconstruction failed")
	n.cache.DeleteObject(root)
	delete(n.rootContributors, root)
	if n.hooks.OnReconstructFailed != nil {
		n.hooks.OnReconstructFailed(root, err)
	}
}

// deliverPayload decodes a reconstructed object, binds the peers that
// contributed shards for root to the object's publisher key when it
// carries a valid signature (spec §4.6 rule 4 needs this binding before
// a block on a publisher can apply to shards arriving over a lane whose
// peer id isn't the publisher key), and fires on_payload with the opened
// cleartext. DecodeObject has already rejected a SIGNED object with a
// bad signature, so reaching here means any signature present verified.
// A namespace listed in RequiredSignedNamespaces drops an unsigned
// object outright (spec §6). on_payload fires only when a DecryptionKey
// is configured; otherwise this node has no way to produce cleartext
// and the hook is not invoked with raw ciphertext standing in for it.
func (n *Node) deliverPayload(root [32]byte, objectBytes []byte) {
	contributors := n.rootContributors[root]
	delete(n.rootContributors, root)

	obj, err := codec.DecodeObject(objectBytes)
	if err != nil {
		return
	}

	if obj.Signed() {
		publisher := policy.PublisherID(fmt.Sprintf("%x", obj.SenderPubKey))
		for peer := range contributors {
			n.peerPublisher[peer] = publisher
		}
	}

	if _, required := n.cfg.RequiredSignedNamespaces[obj.Namespace]; required && !obj.Signed() {
		return
	}

	if n.hooks.OnPayload == nil || len(n.cfg.DecryptionKey) == 0 {
		return
	}

	cleartext, err := n.openSealed(obj.Nonce, obj.Ciphertext)
	if err != nil {
		if n.hooks.OnPersistenceError != nil {
			n.hooks.OnPersistenceError(fmt.Errorf("runtime: opening sealed payload for %x: %w", root, err))
		}
		return
	}
	n.hooks.OnPayload(root, cleartext)
}

// resolvePublisher returns the publisher key a prior verified signed
// reconstruction bound to peer, or "" when no binding exists yet.
// forwarding.Engine.Admit already treats "" as "not yet bound to a known
// publisher" and judges the shard on lane/tag criteria alone — it must
// never be handed the raw peer id as a stand-in, or a block on a
// publisher key would silently fail to match traffic arriving over a
// lane whose peer id differs from that key (the common case before any
// binding exists).
func (n *Node) resolvePublisher(peer string) policy.PublisherID {
	return n.peerPublisher[peer]
}

// recordContributor notes that peer delivered an admitted shard for
// root, so deliverPayload can bind peer to root's publisher key once
// reconstruction completes and the object turns out to be signed.
func (n *Node) recordContributor(root [32]byte, peer string) {
	set, ok := n.rootContributors[root]
	if !ok {
		set = make(map[string]struct{})
		n.rootContributors[root] = set
	}
	set[peer] = struct{}{}
}

// openSealed decrypts a nonce/ciphertext pair with the node's configured
// XChaCha20-Poly1305 key (spec §11 "on_payload" decrypt path). Callers
// only reach here when DecryptionKey is set.
func (n *Node) openSealed(nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(n.cfg.DecryptionKey)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("runtime: expected %d-byte nonce, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

func (n *Node) forwardShard(a admittedShard, nowMs int64) {
	payload, ok := n.cache.Get(a.root, a.index)
	if !ok {
		return
	}
	sh := &codec.Shard{
		Version: codec.ShardVersion, Tag: a.tag, ObjectRoot: a.root,
		K: a.k, N: a.n, Index: a.index, Payload: payload,
	}
	encoded, err := codec.EncodeShard(sh)
	if err != nil {
		return
	}

	forwards := n.forwarder.SelectForwards(toForwardingPeers(n.peers), forwarding.Peer(a.sourcePeer), 0, nowMs)
	for _, fwd := range forwards {
		laneName := laneNameFor(fwd.Lane)
		if err := n.lanes.Send(laneName, string(fwd.Peer), encoded); err != nil {
			n.log.WithField("lane", laneName).WithField("peer", string(fwd.Peer)).WithError(err).Warn("forward failed")
			if n.hooks.OnForwardError != nil {
				n.hooks.OnForwardError(laneName, string(fwd.Peer), err)
			}
			continue
		}
		n.log.WithFields(logrus.Fields{
			"object_root": fmt.Sprintf("%x", a.root), "index": a.index, "lane": laneName, "peer": string(fwd.Peer),
		}).Debug("forwarded shard")
		if n.hooks.OnForward != nil {
			n.hooks.OnForward(string(fwd.Peer))
		}
	}
}

func (n *Node) maybeSnapshot(nowMs int64) {
	if n.snapshotIntervalMs <= 0 {
		return
	}
	if nowMs-n.lastSnapshotAtMs < n.snapshotIntervalMs {
		return
	}
	n.lastSnapshotAtMs = nowMs
	if n.hooks.OnSnapshot != nil {
		n.hooks.OnSnapshot(n.Snapshot())
	}
}

// Snapshot serializes the node's durable state (cache contents,
// subscriptions, policy tiers and endorsements) via the persistence
// package. Lane counters and in-flight tracker state are never persisted
// (spec §4.9); a restarted node rebuilds them from traffic.
func (n *Node) Snapshot() []byte {
	return persistence.SaveState(n.cache, n.ListSubscriptions(), n.policy)
}

// Restore replaces the node's cache, subscriptions, and policy state from
// a snapshot previously produced by Snapshot. A persistence failure is
// reported via OnPersistenceError and leaves the node's existing state
// untouched (spec §7 "Persistence").
func (n *Node) Restore(data []byte) {
	subs, err := persistence.LoadState(data, n.cache, n.policy)
	if err != nil {
		if n.hooks.OnPersistenceError != nil {
			n.hooks.OnPersistenceError(err)
		}
		return
	}
	n.subscriptions = make(map[codec.Tag]struct{}, len(subs))
	for _, tag := range subs {
		n.subscriptions[tag] = struct{}{}
		n.forwarder.Subscribe(tag)
	}
}

func toForwardingPeers(peers []string) []forwarding.Peer {
	out := make([]forwarding.Peer, len(peers))
	for i, p := range peers {
		out[i] = forwarding.Peer(p)
	}
	return out
}

func laneNameFor(l forwarding.Lane) string {
	if l == forwarding.FallbackLane {
		return laneFallback
	}
	return laneFast
}
