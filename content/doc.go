// Package content holds the room presets and offload scripts shipped with the server.
package content
