//go:build !(amd64 || arm64 || loong64 || ppc64 || ppc64le || riscv64 || s390x || mips64 || mips64le)

package fsutil

const maxMapSize = 0x7FFFFFFF // 2GB
