// Package tcp accepts client connections, registers them, and runs one line reader per connection.
package tcp
