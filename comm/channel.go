package comm

import "fmt"

// mailDepth bounds the number of undrained messages per rank pair. Ghost
// exchange posts at most two sends per axis phase, so this is generous.
const mailDepth = 64

type message struct {
	tag  int
	data []float64
}

// channelGroup is the shared state of an in-process communicator group.
// mail[src][dst] carries messages from src to dst in FIFO order.
type channelGroup struct {
	size    int
	mail    [][]chan message
	reduce  []chan float64
	results []chan float64
}

// ChannelComm is one rank's endpoint into an in-process communicator
// group. Ranks run as goroutines; all coordination is via channels, no
// shared buffers.
type ChannelComm struct {
	group *channelGroup
	rank  int
}

// NewChannelGroup creates an n-rank communicator group and returns one
// endpoint per rank.
func NewChannelGroup(n int) (comms []*ChannelComm) {
	if n < 1 {
		panic(fmt.Errorf("comm: group size must be positive, got %d", n))
	}
	g := &channelGroup{
		size:    n,
		mail:    make([][]chan message, n),
		reduce:  make([]chan float64, n),
		results: make([]chan float64, n),
	}
	for src := 0; src < n; src++ {
		g.mail[src] = make([]chan message, n)
		for dst := 0; dst < n; dst++ {
			g.mail[src][dst] = make(chan message, mailDepth)
		}
		g.reduce[src] = make(chan float64, 1)
		g.results[src] = make(chan float64, 1)
	}
	comms = make([]*ChannelComm, n)
	for r := 0; r < n; r++ {
		comms[r] = &ChannelComm{group: g, rank: r}
	}
	return
}

func (c *ChannelComm) Rank() int { return c.rank }
func (c *ChannelComm) Size() int { return c.group.size }

func (c *ChannelComm) Send(dest, tag int, data []float64) {
	if dest < 0 || dest >= c.group.size {
		panic(fmt.Errorf("comm: send to rank %d out of range [0,%d)", dest, c.group.size))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	c.group.mail[c.rank][dest] <- message{tag: tag, data: buf}
}

func (c *ChannelComm) Recv(source, tag int, data []float64) {
	if source < 0 || source >= c.group.size {
		panic(fmt.Errorf("comm: recv from rank %d out of range [0,%d)", source, c.group.size))
	}
	msg, ok := <-c.group.mail[source][c.rank]
	if !ok {
		panic(fmt.Errorf("comm: rank %d closed while rank %d was receiving", source, c.rank))
	}
	// A mismatch means the ranks have diverged in their collective call
	// order. That state cannot be replayed safely, so abort.
	if msg.tag != tag {
		panic(fmt.Errorf("comm: rank %d expected tag %d from rank %d, got %d",
			c.rank, tag, source, msg.tag))
	}
	if len(msg.data) != len(data) {
		panic(fmt.Errorf("comm: rank %d expected %d values from rank %d, got %d",
			c.rank, len(data), source, len(msg.data)))
	}
	copy(data, msg.data)
}

// AllReduceSum gathers every rank's value at rank 0, accumulates in rank
// order so the result is deterministic, then broadcasts the sum.
func (c *ChannelComm) AllReduceSum(x float64) float64 {
	g := c.group
	if g.size == 1 {
		return x
	}
	if c.rank == 0 {
		sum := x
		for r := 1; r < g.size; r++ {
			sum += <-g.reduce[r]
		}
		for r := 1; r < g.size; r++ {
			g.results[r] <- sum
		}
		return sum
	}
	g.reduce[c.rank] <- x
	return <-g.results[c.rank]
}
