package seccomp

import (
	"encoding/json"
	"fmt"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// personalityQuery is the argument CPython's libc passes to read the current persona.
const personalityQuery = 0xffffffff

// interpreter is what a single CPython process needs to load the harness,
// read the mounted snippet and write to its pipes.
var interpreter = []Rule{
	allow("read", "write", "readv", "writev", "pread64",
		"open", "openat", "close", "lseek",
		"stat", "fstat", "lstat", "newfstatat", "statx",
		"access", "faccessat", "faccessat2",
		"dup", "dup2", "dup3", "fcntl",
		"poll", "ppoll", "select", "pselect6",
		"pipe", "pipe2", "readlink", "readlinkat", "getdents64", "ioctl"),
	allow("brk", "mmap", "munmap", "mprotect", "mremap", "madvise"),
	allow("execve", "exit", "exit_group", "set_tid_address",
		"set_robust_list", "get_robust_list", "rseq"),
	allow("futex", "gettid", "tgkill",
		"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
		"sched_getaffinity", "sched_yield"),
	allow("clock_gettime", "clock_getres", "gettimeofday",
		"nanosleep", "clock_nanosleep", "times", "getrusage"),
	allow("getpid", "getppid", "getuid", "geteuid", "getgid", "getegid", "uname", "getcwd"),
	// The harness sets its own rlimits before running the snippet.
	allow("getrandom", "arch_prctl", "prctl", "sysinfo",
		"getrlimit", "setrlimit", "prlimit64", "umask", "statfs", "fstatfs"),
	{
		Action: specs.ActAllow,
		Names:  []string{"personality"},
		Args:   []specs.LinuxSeccompArg{{Index: 0, Value: personalityQuery, Op: specs.OpEqualTo}},
	},
}

// forbidden is denied explicitly so a snippet that escapes the capability
// table still cannot fork, reach the network or touch the kernel.
var forbidden = []Rule{
	trap("ptrace", "process_vm_readv", "process_vm_writev",
		"keyctl", "add_key", "request_key", "bpf", "perf_event_open", "userfaultfd",
		"kexec_load", "kexec_file_load", "finit_module", "init_module", "delete_module"),
	deny("socket", "socketpair", "connect", "bind", "listen", "accept", "accept4"),
	deny("fork", "vfork", "clone", "clone3", "execveat"),
	deny("mount", "umount2", "pivot_root", "setns", "unshare",
		"reboot", "swapon", "swapoff", "sethostname", "setdomainname", "acct",
		"settimeofday", "adjtimex", "clock_adjtime",
		"nfsservctl", "lookup_dcookie", "ioperm", "iopl"),
}

// DefaultProfile returns the worker profile: one Python interpreter may run
// but never fork, open sockets or touch the host kernel.
func DefaultProfile() *specs.LinuxSeccomp {
	return Compile(interpreter, forbidden)
}

// DockerProfileJSON renders DefaultProfile in the format accepted by
// `docker run --security-opt seccomp=<file>`.
func DockerProfileJSON() ([]byte, error) {
	data, err := json.MarshalIndent(DefaultProfile(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling seccomp profile: %w", err)
	}
	return data, nil
}
