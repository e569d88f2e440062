package idcode

// jep106 maps the 11-bit IDCODE manufacturer field to vendor names. The
// field encodes the JEP106 continuation (bank) count in bits [10:7] and the
// identification code in bits [6:0], so vendors from later banks carry the
// bank number in the high bits. Only vendors plausibly seen on a debug
// probe's scan chain are listed; the full registry runs to thousands of
// entries.
var jep106 = map[uint16]string{
	0x001: "AMD",
	0x007: "Hitachi",
	0x009: "Intel",
	0x00E: "Freescale (Motorola)",
	0x015: "Philips Semiconductors",
	0x017: "Texas Instruments",
	0x01F: "Atmel",
	0x020: "STMicroelectronics",
	0x025: "Analog Devices",
	0x02E: "Cypress",
	0x031: "Xilinx",
	0x03D: "Altera",
	0x041: "Lattice Semiconductor",
	0x049: "Infineon",
	0x06E: "Microchip",
	0x070: "Qualcomm",
	0x23B: "ARM",
	0x244: "Nordic Semiconductor",
	0x489: "SiFive",
	0x493: "Raspberry Pi",
}
