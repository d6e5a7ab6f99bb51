package distro

const fedoraVersion = "40"

// FedoraProvider implements Provider for Fedora.
type FedoraProvider struct {
	BaseProvider
}

// NewFedoraProvider creates a new Fedora provider.
func NewFedoraProvider() *FedoraProvider {
	return &FedoraProvider{
		BaseProvider: BaseProvider{
			id:        Fedora,
			name:      "Fedora",
			version:   fedoraVersion,
			archs:     []Arch{ArchAMD64, ArchARM64},
			template:  "fedora-" + fedoraVersion,
			osVariant: "fedora" + fedoraVersion,
		},
	}
}

// Packages adds grubby, which manages the guest boot arguments.
func (p *FedoraProvider) Packages() []string {
	return []string{"tuned", "grubby"}
}

func init() {
	Register(NewFedoraProvider())
}
