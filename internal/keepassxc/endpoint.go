package keepassxc

// serverName is the socket (or pipe) base name KeePassXC listens on for
// browser integration clients.
const serverName = "org.keepassxc.KeePassXC.BrowserServer"
