package rosnet

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Context is an execution context: it owns the dispatch goroutine that runs
// subscription callbacks, and tracks the nodes created under it. Callbacks
// never run on a publisher's goroutine.
type Context struct {
	logger *zap.Logger
	graph  Graph

	mu    sync.Mutex
	nodes map[string]*Node
	down  bool

	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewContext attaches a fresh execution context to the graph and starts its
// dispatch goroutine.
func NewContext(graph Graph, logger *zap.Logger) (*Context, error) {
	if graph == nil {
		return nil, errors.New("rosnet: no graph to attach to")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Context{
		logger: logger,
		graph:  graph,
		nodes:  make(map[string]*Node),
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.spin()
	return c, nil
}

func (c *Context) spin() {
	defer c.wg.Done()
	for {
		select {
		case task := <-c.tasks:
			task()
		case <-c.done:
			return
		}
	}
}

// dispatch hands a callback to the spin goroutine. Callbacks arriving after
// shutdown are discarded.
func (c *Context) dispatch(task func()) {
	select {
	case c.tasks <- task:
	case <-c.done:
	}
}

// NewNode creates a node under the context. The fully-qualified name must be
// unique on the graph.
func (c *Context) NewNode(name, namespace string) (*Node, error) {
	if name == "" {
		return nil, errors.New("rosnet: node name must not be empty")
	}
	fqn := qualifyNode(namespace, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, errors.New("rosnet: context has been shut down")
	}
	if _, ok := c.nodes[fqn]; ok {
		return nil, errors.Errorf("rosnet: node %q already exists in this context", fqn)
	}
	if err := c.graph.RegisterNode(fqn); err != nil {
		return nil, err
	}

	n := &Node{
		ctx:       c,
		name:      name,
		namespace: namespace,
		fqn:       fqn,
		logger:    c.logger.With(zap.String("node", fqn)),
	}
	c.nodes[fqn] = n
	return n, nil
}

func (c *Context) removeNode(n *Node) {
	c.mu.Lock()
	delete(c.nodes, n.fqn)
	c.mu.Unlock()
	c.graph.UnregisterNode(n.fqn)
}

// Shutdown closes all nodes and stops callback dispatch. Safe to call more
// than once.
func (c *Context) Shutdown(reason string) {
	c.mu.Lock()
	if c.down {
		c.mu.Unlock()
		return
	}
	c.down = true
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	c.logger.Debug("shutting down context", zap.String("reason", reason))
	for _, n := range nodes {
		if err := n.Close(); err != nil {
			c.logger.Warn("node close failed during shutdown", zap.String("node", n.fqn), zap.Error(err))
		}
	}
	close(c.done)
	c.wg.Wait()
}
