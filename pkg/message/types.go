package message

// Wire ids of the built-in messages.
const (
	IDLog uint32 = iota + 1
	IDJobDiagnostic
	IDShaderSourceMapping
	IDGetShaderSourceMapping
	IDHostConnected
	IDInstrumentationDiagnostic
	IDCompilationDiagnostic
)

type Severity uint32

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Log is a free-form log line from a remote system.
type Log struct {
	Severity Severity
	System   string
	Message  string
}

// JobDiagnostic reports how many background jobs are still pending.
type JobDiagnostic struct {
	Remaining uint32
}

// ShaderSourceMapping maps a shader source guid to a source location.
type ShaderSourceMapping struct {
	ShaderGUID uint64
	SGUID      uint32
	Line       uint32
	Column     uint32
	Contents   string
}

// GetShaderSourceMapping requests the mapping of a source guid.
type GetShaderSourceMapping struct {
	SGUID uint32
}

type HostConnected struct {
	Accepted bool
}

// CompilationDiagnostic is a single compiler message.
type CompilationDiagnostic struct {
	Content string
}

// InstrumentationDiagnostic summarises an instrumentation pass. Messages
// is an ordered stream of CompilationDiagnostic records.
type InstrumentationDiagnostic struct {
	PassedShaders        uint32
	FailedShaders        uint32
	PassedPipelines      uint32
	FailedPipelines      uint32
	ShaderMilliseconds   uint32
	PipelineMilliseconds uint32
	TotalMilliseconds    uint32
	Messages             SubStream
}

func (Log) MessageID() uint32                       { return IDLog }
func (JobDiagnostic) MessageID() uint32             { return IDJobDiagnostic }
func (ShaderSourceMapping) MessageID() uint32       { return IDShaderSourceMapping }
func (GetShaderSourceMapping) MessageID() uint32    { return IDGetShaderSourceMapping }
func (HostConnected) MessageID() uint32             { return IDHostConnected }
func (CompilationDiagnostic) MessageID() uint32     { return IDCompilationDiagnostic }
func (InstrumentationDiagnostic) MessageID() uint32 { return IDInstrumentationDiagnostic }

func init() {
	Registered.MustRegister(IDLog, "Log", func() Message { return &Log{} })
	Registered.MustRegister(IDJobDiagnostic, "JobDiagnostic", func() Message { return &JobDiagnostic{} })
	Registered.MustRegister(IDShaderSourceMapping, "ShaderSourceMapping", func() Message { return &ShaderSourceMapping{} })
	Registered.MustRegister(IDGetShaderSourceMapping, "GetShaderSourceMapping", func() Message { return &GetShaderSourceMapping{} })
	Registered.MustRegister(IDHostConnected, "HostConnected", func() Message { return &HostConnected{} })
	Registered.MustRegister(IDInstrumentationDiagnostic, "InstrumentationDiagnostic", func() Message { return &InstrumentationDiagnostic{} })
	Registered.MustRegister(IDCompilationDiagnostic, "CompilationDiagnostic", func() Message { return &CompilationDiagnostic{} })
}
