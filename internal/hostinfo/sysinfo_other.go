//go:build !linux

package hostinfo

func read() Info {
	return Info{}
}
