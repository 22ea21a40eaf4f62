package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// digest — SHA-256 от строкового представления, в hex.
func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Account — учётные данные для доступа к удалённой стороне.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

// Describe возвращает описание аккаунта. Пароль в описание не попадает.
func (a Account) Describe() string {
	return a.Username
}

// Address — сетевой адрес удалённой стороны.
type Address struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// Describe возвращает описание в формате host:port.
func (a Address) Describe() string {
	return a.Host + ":" + a.Port
}

// Terminal — тип терминала (устройства, сервиса) на удалённой стороне.
type Terminal struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Describe возвращает описание в формате name:version.
func (t Terminal) Describe() string {
	return t.Name + ":" + t.Version
}

// ProtocolCategory — категория протокола.
type ProtocolCategory string

const (
	ProtocolTCP   ProtocolCategory = "TCP"
	ProtocolUDP   ProtocolCategory = "UDP"
	ProtocolHTTP  ProtocolCategory = "HTTP"
	ProtocolHTTPS ProtocolCategory = "HTTPS"
	ProtocolOther ProtocolCategory = "OTHER"
)

// ParseProtocolCategory парсит строку в ProtocolCategory.
// Неизвестные значения превращаются в OTHER.
func ParseProtocolCategory(s string) ProtocolCategory {
	switch ProtocolCategory(s) {
	case ProtocolTCP, ProtocolUDP, ProtocolHTTP, ProtocolHTTPS:
		return ProtocolCategory(s)
	default:
		return ProtocolOther
	}
}

// Protocol — протокол общения с удалённой стороной.
type Protocol struct {
	Category ProtocolCategory `json:"category"`
	Name     string           `json:"name"`
	Version  string           `json:"version"`
}

// Describe возвращает описание в формате CATEGORY:name:version.
func (p Protocol) Describe() string {
	category := p.Category
	if category == "" {
		category = ProtocolOther
	}
	return fmt.Sprintf("%s:%s:%s", category, p.Name, p.Version)
}

// Identity — удалённый собеседник: аккаунт, адрес, терминал и протокол.
//
// Identity неизменяема после создания: hash и ID вычисляются
// один раз в NewIdentity.
type Identity struct {
	account  Account
	address  Address
	terminal Terminal
	protocol Protocol

	hash string
	id   string
}

// NewIdentity создаёт Identity и вычисляет её идентификатор.
func NewIdentity(account Account, address Address, terminal Terminal, protocol Protocol) Identity {
	hash := address.Describe() + "/" + account.Describe() +
		terminal.Describe() + "/" + protocol.Describe()
	return Identity{
		account:  account,
		address:  address,
		terminal: terminal,
		protocol: protocol,
		hash:     hash,
		id:       digest(hash),
	}
}

func (i Identity) Account() Account   { return i.account }
func (i Identity) Address() Address   { return i.address }
func (i Identity) Terminal() Terminal { return i.terminal }
func (i Identity) Protocol() Protocol { return i.protocol }

// Hash возвращает конкатенацию описаний, из которой получен ID.
func (i Identity) Hash() string { return i.hash }

// ID возвращает SHA-256 от Hash.
func (i Identity) ID() string { return i.id }
