package peercore

import "net"

func resolveUDPAddr(spec string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", spec)
}

func sendUDP(addr *net.UDPAddr, payload []byte) error {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}
