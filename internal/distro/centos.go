package distro

const centosVersion = "9"

// CentOSStreamProvider implements Provider for CentOS Stream.
type CentOSStreamProvider struct {
	BaseProvider
}

// NewCentOSStreamProvider creates a new CentOS Stream provider.
func NewCentOSStreamProvider() *CentOSStreamProvider {
	return &CentOSStreamProvider{
		BaseProvider: BaseProvider{
			id:        CentOSStream,
			name:      "CentOS Stream",
			version:   centosVersion,
			archs:     []Arch{ArchAMD64},
			template:  "centosstream-" + centosVersion,
			osVariant: "centos-stream" + centosVersion,
		},
	}
}

// Packages adds grubby, which manages the guest boot arguments.
func (p *CentOSStreamProvider) Packages() []string {
	return []string{"tuned", "grubby"}
}

func init() {
	Register(NewCentOSStreamProvider())
}
