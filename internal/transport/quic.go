package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/quic-go/quic-go"
)

const nextProto = "hooksmp"

type peerConn struct {
	id        PeerID
	conn      *quic.Conn
	commOut   *quic.Stream
	commOutMu sync.Mutex
}

// QuicHost is the quic-go backed Host implementation: one QUIC connection
// per peer, a bidirectional stream for COMM and datagrams (leading
// channel-id byte) for GAME/TIME.
type QuicHost struct {
	isServer bool
	listener *quic.Listener

	mu       sync.Mutex
	peers    map[PeerID]*peerConn
	nextPeer PeerID

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// CreateServer listens for QUIC connections on addr (e.g. ":7777"). With
// certPath and keyPath both empty it self-signs an ephemeral certificate,
// fine for local development but not for a peer that intends to connect
// with TLS verification enabled.
func CreateServer(addr, certPath, keyPath string) (*QuicHost, error) {
	tlsConf, err := serverTLSConfig(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicTransportConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceFailed, err)
	}
	h := newHost(true)
	h.listener = ln
	go h.acceptLoop()
	return h, nil
}

// CreateClient returns a host ready to Connect to a server.
func CreateClient() *QuicHost {
	return newHost(false)
}

func newHost(isServer bool) *QuicHost {
	ctx, cancel := context.WithCancel(context.Background())
	return &QuicHost{
		isServer: isServer,
		peers:    make(map[PeerID]*peerConn),
		events:   make(chan Event, 256),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func quicTransportConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
	}
}

// Connect dials addr; a successful handshake yields an EventConnect from a
// later Service call once the connection is fully established. The server
// presents a self-signed certificate by default, so insecureSkipVerify is
// normally true outside of deployments that provision real TLS material.
func (h *QuicHost) Connect(addr string, insecureSkipVerify bool) error {
	tlsConf := &tls.Config{InsecureSkipVerify: insecureSkipVerify, NextProtos: []string{nextProto}}
	conn, err := quic.DialAddr(h.ctx, addr, tlsConf, quicTransportConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceFailed, err)
	}
	h.handleNewConn(conn)
	return nil
}

func (h *QuicHost) acceptLoop() {
	for {
		conn, err := h.listener.Accept(h.ctx)
		if err != nil {
			return
		}
		h.handleNewConn(conn)
	}
}

func (h *QuicHost) handleNewConn(conn *quic.Conn) {
	h.mu.Lock()
	h.nextPeer++
	id := h.nextPeer
	pc := &peerConn{id: id, conn: conn}
	h.peers[id] = pc
	h.mu.Unlock()

	go h.commAcceptLoop(pc)
	go h.datagramLoop(pc)

	select {
	case h.events <- Event{Kind: EventConnect, Peer: id}:
	case <-h.ctx.Done():
	}
}

// commAcceptLoop owns the reliable ordered COMM stream: the dialing side
// opens it, the accepting side waits for it, and each frame is length
// prefixed (u32) so message boundaries survive the stream's byte semantics.
func (h *QuicHost) commAcceptLoop(pc *peerConn) {
	var stream *quic.Stream
	var err error
	if h.isServer {
		stream, err = pc.conn.AcceptStream(h.ctx)
	} else {
		stream, err = pc.conn.OpenStreamSync(h.ctx)
	}
	if err != nil {
		h.emitDisconnect(pc.id, protocol.Disconnected)
		return
	}
	pc.commOutMu.Lock()
	pc.commOut = stream
	pc.commOutMu.Unlock()

	lenBuf := make([]byte, 4)
	for {
		if _, err := readFull(stream, lenBuf); err != nil {
			h.emitDisconnect(pc.id, protocol.Disconnected)
			return
		}
		n := binary.BigEndian.Uint32(lenBuf)
		body := make([]byte, n)
		if _, err := readFull(stream, body); err != nil {
			h.emitDisconnect(pc.id, protocol.Disconnected)
			return
		}
		select {
		case h.events <- Event{Kind: EventReceive, Peer: pc.id, Channel: protocol.ChannelComm, Data: body}:
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *QuicHost) datagramLoop(pc *peerConn) {
	for {
		data, err := pc.conn.ReceiveDatagram(h.ctx)
		if err != nil {
			return
		}
		if len(data) == 0 {
			continue
		}
		ch := protocol.ChannelID(data[0])
		select {
		case h.events <- Event{Kind: EventReceive, Peer: pc.id, Channel: ch, Data: data[1:]}:
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *QuicHost) emitDisconnect(id PeerID, code protocol.LeaveReason) {
	h.mu.Lock()
	_, ok := h.peers[id]
	delete(h.peers, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	select {
	case h.events <- Event{Kind: EventDisconnect, Peer: id, Code: code}:
	case <-h.ctx.Done():
	}
}

// Service blocks up to timeout for the next queued event.
func (h *QuicHost) Service(timeout time.Duration) (Event, error) {
	if timeout <= 0 {
		select {
		case e := <-h.events:
			return e, nil
		default:
			return Event{Kind: EventNone}, nil
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case e := <-h.events:
		return e, nil
	case <-t.C:
		return Event{Kind: EventNone}, nil
	}
}

// Send writes data to peer on channel. COMM always goes over the reliable
// stream regardless of the requested flag (it has no unreliable option);
// GAME/TIME always go as a datagram tagged with the channel byte.
func (h *QuicHost) Send(peer PeerID, channel protocol.ChannelID, flag protocol.PacketFlag, data []byte) error {
	h.mu.Lock()
	pc, ok := h.peers[peer]
	h.mu.Unlock()
	if !ok {
		return nil // vanished peer: commands are silently dropped
	}
	if channel == protocol.ChannelComm {
		return h.sendComm(pc, data)
	}
	framed := make([]byte, len(data)+1)
	framed[0] = byte(channel)
	copy(framed[1:], data)
	if err := pc.conn.SendDatagram(framed); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

func (h *QuicHost) sendComm(pc *peerConn, data []byte) error {
	pc.commOutMu.Lock()
	stream := pc.commOut
	pc.commOutMu.Unlock()
	if stream == nil {
		return fmt.Errorf("%w: comm stream not ready", ErrSendFailed)
	}
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := stream.Write(lenBuf); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if _, err := stream.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Disconnect closes the connection to peer with an application error code
// carrying the leave reason.
func (h *QuicHost) Disconnect(peer PeerID, code protocol.LeaveReason) error {
	h.mu.Lock()
	pc, ok := h.peers[peer]
	delete(h.peers, peer)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	_ = pc.conn.CloseWithError(quic.ApplicationErrorCode(code), code.String())
	return nil
}

// Flush is a no-op for QUIC: writes are issued as they are made.
func (h *QuicHost) Flush() error { return nil }

// Close tears down every connection and stops background goroutines.
func (h *QuicHost) Close() error {
	h.cancel()
	h.mu.Lock()
	peers := make([]*peerConn, 0, len(h.peers))
	for _, pc := range h.peers {
		peers = append(peers, pc)
	}
	h.peers = make(map[PeerID]*peerConn)
	h.mu.Unlock()
	for _, pc := range peers {
		_ = pc.conn.CloseWithError(0, "host closing")
	}
	if h.listener != nil {
		return h.listener.Close()
	}
	return nil
}

func readFull(s *quic.Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// serverTLSConfig loads certPath/keyPath if both are given, otherwise falls
// back to an ephemeral self-signed certificate.
func serverTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load TLS keypair: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{nextProto},
		}, nil
	}
	return selfSignedTLSConfig()
}

// selfSignedTLSConfig generates an ephemeral self-signed certificate for the
// server side of the handshake; there is no persisted identity to manage.
func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{nextProto},
	}, nil
}
