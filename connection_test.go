package sharprudp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// RudpConnectionTestSuite exercises a real server/client pair over
// loopback UDP, the way the teacher's UdpConnectorTestSuite drives two
// real sockets against each other rather than mocking the wire.
type RudpConnectionTestSuite struct {
	suite.Suite
	server *Conn
	client *Conn
}

func (s *RudpConnectionTestSuite) SetupTest() {
	var connectedWg sync.WaitGroup
	connectedWg.Add(1)

	server, err := Listen("127.0.0.1:0", DefaultConfig(), Events{})
	s.Require().NoError(err)
	s.server = server

	client, err := Connect(server.socket.conn.LocalAddr().String(), DefaultConfig(), Events{
		OnConnected: func(Peer) { connectedWg.Done() },
	})
	s.Require().NoError(err)
	s.client = client

	waitTimeout(&connectedWg, 2*time.Second)
}

func (s *RudpConnectionTestSuite) TearDownTest() {
	_ = s.client.Disconnect()
	_ = s.server.Disconnect()
}

func (s *RudpConnectionTestSuite) TestHandshakeCompletesAndServerLearnsClient() {
	s.Require().Eventually(func() bool {
		return s.client.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	s.Require().Eventually(func() bool {
		return len(s.server.knownClients()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *RudpConnectionTestSuite) TestTextDeliveredToServer() {
	received := make(chan string, 1)
	s.server.events = newEventDispatcher(Events{
		// The client's handshake ACK is dispatched too; only DAT carries the text.
		OnPacketReceived: func(p *Packet) {
			if p.Type == PacketDAT {
				received <- string(p.Data)
			}
		},
	})

	s.Require().Eventually(func() bool {
		return s.client.State() == StateOpen
	}, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(s.client.SendText("hello server"))

	select {
	case msg := <-received:
		s.Equal("hello server", msg)
	case <-time.After(2 * time.Second):
		s.Fail("server never received the packet")
	}
}

func TestRudpConnection(t *testing.T) {
	suite.Run(t, new(RudpConnectionTestSuite))
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
