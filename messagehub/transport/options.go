package transport

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets the logger. Connection state changes are logged at Info,
// failed attempts and skipped endpoints at Warn, frames at Debug.
func WithLogger(logger Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithHeader adds a header to every websocket handshake, e.g. an Authorization bearer token.
func WithHeader(key, value string) Option {
	return func(s *Service) error {
		s.header.Add(key, value)
		return nil
	}
}

// WithInstanceID overrides the generated instance id.
func WithInstanceID(id string) Option {
	return func(s *Service) error {
		if id != "" {
			s.instanceID = id
		}

		return nil
	}
}

func (s *Service) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
