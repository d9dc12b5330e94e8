package seccomp

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Rule gives one action to a group of syscalls. Args, when set, must all
// match for the rule to apply.
type Rule struct {
	Action specs.LinuxSeccompAction
	Names  []string
	Args   []specs.LinuxSeccompArg
}

func allow(names ...string) Rule { return Rule{Action: specs.ActAllow, Names: names} }
func deny(names ...string) Rule  { return Rule{Action: specs.ActErrno, Names: names} }
func trap(names ...string) Rule  { return Rule{Action: specs.ActTrap, Names: names} }

// Compile turns rules into a deny-by-default profile for the worker architectures.
func Compile(rules ...[]Rule) *specs.LinuxSeccomp {
	p := &specs.LinuxSeccomp{
		DefaultAction: specs.ActErrno,
		Architectures: []specs.Arch{specs.ArchX86_64, specs.ArchAARCH64},
	}
	for _, group := range rules {
		for _, r := range group {
			p.Syscalls = append(p.Syscalls, specs.LinuxSyscall{
				Names:  r.Names,
				Action: r.Action,
				Args:   r.Args,
			})
		}
	}
	return p
}

// ActionFor returns the action of the first rule naming syscall. Unnamed
// syscalls fall through to the profile default.
func ActionFor(p *specs.LinuxSeccomp, syscall string) specs.LinuxSeccompAction {
	for _, rule := range p.Syscalls {
		for _, name := range rule.Names {
			if name == syscall {
				return rule.Action
			}
		}
	}
	return p.DefaultAction
}
