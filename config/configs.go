package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

var MainRouter string
var DSN string
var Dbname string
var DetectURL string
var SqlitePath string
var MainConfig Config

type Config struct {
	XMLName    xml.Name `xml:"config"`
	MainRouter string   `xml:"MainRouter"`
	Dbname     string   `xml:"dbname"`
	Host       string   `xml:"host"`
	Port       string   `xml:"port"`
	Username   string   `xml:"user"`
	Password   string   `xml:"password"`
	DetectURL  string   `xml:"DetectURL"`
	SqlitePath string   `xml:"sqlite"`
}

func init() {

	xmlFile, err := os.Open("config.xml")
	if err != nil {
		// 无配置文件时回退到本地sqlite，方便开发调试
		fmt.Println("Error  opening  file:", err)
		MainRouter = "0.0.0.0:8181"
		DetectURL = "http://localhost:5000"
		SqlitePath = "roadcollab.db"
		return
	}
	defer xmlFile.Close()

	xmlDecoder := xml.NewDecoder(xmlFile)
	err = xmlDecoder.Decode(&MainConfig)
	if err != nil {
		fmt.Println("Error  decoding  XML:", err)
		return
	}
	MainRouter = MainConfig.MainRouter
	Dbname = MainConfig.Dbname
	DetectURL = MainConfig.DetectURL
	SqlitePath = MainConfig.SqlitePath

	DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", MainConfig.Host, MainConfig.Username, MainConfig.Password, MainConfig.Dbname, MainConfig.Port)

}
