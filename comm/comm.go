package comm

// Communicator is the minimal message-passing capability the core depends
// on: point-to-point send/receive with rank addressing plus a blocking
// all-reduce sum. It is established once and shared by reference by every
// object built on a decomposition.
type Communicator interface {
	Rank() int
	Size() int
	// Send transmits data to dest. The data slice is copied before the
	// call returns, so the caller may reuse it immediately.
	Send(dest, tag int, data []float64)
	// Recv blocks until a message from source arrives and copies it into
	// data, which must have the exact message length. A tag or length
	// mismatch indicates a corrupted exchange and aborts the process.
	Recv(source, tag int, data []float64)
	// AllReduceSum is a blocking collective sum over all ranks. Every rank
	// receives the same result, accumulated in rank order.
	AllReduceSum(x float64) float64
}

// SelfComm is the single-process loopback communicator used for serial
// runs and unit tests.
type SelfComm struct{}

func (SelfComm) Rank() int { return 0 }
func (SelfComm) Size() int { return 1 }

func (SelfComm) Send(dest, tag int, data []float64) {
	panic("comm: SelfComm has no peers to send to")
}

func (SelfComm) Recv(source, tag int, data []float64) {
	panic("comm: SelfComm has no peers to receive from")
}

func (SelfComm) AllReduceSum(x float64) float64 { return x }
