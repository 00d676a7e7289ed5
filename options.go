package forkjoin

// Option configures a wrapper launch.
type Option func(*launchOptions)

type launchOptions struct {
	threads int
	pool    *ThreadPool
}

// WithThreads sets the number of units a launch is split into. The default,
// KAll, uses one unit per worker of the pool; 0 runs on the caller.
func WithThreads(n int) Option {
	return func(o *launchOptions) {
		o.threads = n
	}
}

// WithPool runs the launch on p instead of the process-wide Singleton.
func WithPool(p *ThreadPool) Option {
	return func(o *launchOptions) {
		o.pool = p
	}
}

func applyOptions(opts []Option) launchOptions {
	o := launchOptions{threads: KAll}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pool == nil {
		o.pool = Singleton()
	}
	return o
}
