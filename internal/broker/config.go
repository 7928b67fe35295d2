package broker

// Config controls the demo broker's listener. It is a thin,
// single-process caller that exercises the store over a TCP
// connection, not a replication or clustering layer.
type Config struct {
	ListenAddr string
}
